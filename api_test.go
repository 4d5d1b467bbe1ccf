package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fantastic4/urov/comms"
	"github.com/fantastic4/urov/logging"
	"github.com/fantastic4/urov/onboard"
	"github.com/fantastic4/urov/onboard/drive"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

// testRov wires a simulated vehicle into the package level conductor so
// handlers can be exercised without hardware.
func testRov(t *testing.T) *onboard.Rov {
	config := new(onboard.RovConfig)
	config.Schema = "1.0.0"
	config.Motors.PortHorizontal = 12
	config.Motors.PortVertical = 13
	config.Motors.StarboardHorizontal = 18
	config.Motors.StarboardVertical = 19
	config.Thermal.LogPath = filepath.Join(t.TempDir(), "temperature_log.csv")
	config.Thermal.SamplePeriod.Duration = time.Second
	config.Thermal.FlushThreshold = 10

	rov := onboard.NewRovSimulator(config, ENV.Log)
	ENV.Conductor = comms.NewConductor(rov, logging.Component(ENV.Log, "conductor"))
	return rov
}

func postCommand(payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/command", bytes.NewBufferString(payload))
	req.Header.Add("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	http.HandlerFunc(CommandHandler).ServeHTTP(rr, req)
	return rr
}

func TestCommandAPI(t *testing.T) {
	testRov(t)

	Convey("A drive command returns its status line", t, func() {
		rr := postCommand(`{"cmd": "forward"}`)
		So(rr.Code, ShouldEqual, http.StatusOK)

		var resp StatusResponse
		So(json.Unmarshal(rr.Body.Bytes(), &resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, drive.STATUS_FORWARD)
		So(resp.Error, ShouldEqual, "")
	})

	Convey("set_speed clamps and reports the held width", t, func() {
		rr := postCommand(`{"cmd": "set_speed", "value": 2200}`)
		So(rr.Code, ShouldEqual, http.StatusOK)

		var resp StatusResponse
		So(json.Unmarshal(rr.Body.Bytes(), &resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, "Motor speed set to 1800")
	})

	Convey("Unknown commands return a 400", t, func() {
		rr := postCommand(`{"cmd": "warp"}`)
		So(rr.Code, ShouldEqual, http.StatusBadRequest)
	})

	Convey("A missing cmd field returns a 400", t, func() {
		rr := postCommand(`{}`)
		So(rr.Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestStateAPI(t *testing.T) {
	rov := testRov(t)

	Convey("The state endpoint returns the vehicle snapshot", t, func() {
		_, err := rov.SetSpeed(1500)
		So(err, ShouldBeNil)

		req := httptest.NewRequest("GET", "/api/state", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(StateHandler).ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var state comms.StatePayload
		So(json.Unmarshal(rr.Body.Bytes(), &state), ShouldBeNil)
		So(state.Speed, ShouldEqual, 1500)
		So(state.Obstacle, ShouldBeFalse)
	})

	Convey("The obstacle flag surfaces in the snapshot", t, func() {
		rov.Interlock.Set(true)
		defer rov.Interlock.Set(false)

		req := httptest.NewRequest("GET", "/api/state", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(StateHandler).ServeHTTP(rr, req)

		var state comms.StatePayload
		So(json.Unmarshal(rr.Body.Bytes(), &state), ShouldBeNil)
		So(state.Obstacle, ShouldBeTrue)
	})
}

func TestControlSocket(t *testing.T) {
	testRov(t)

	srv := httptest.NewServer(http.HandlerFunc(ControlSocketHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	Convey("Press and release edges run the vehicle", t, func() {
		So(conn.WriteJSON(comms.ControlEvent{Control: "forward", Event: "press"}), ShouldBeNil)

		var resp StatusResponse
		So(conn.ReadJSON(&resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, drive.STATUS_FORWARD)

		So(conn.WriteJSON(comms.ControlEvent{Control: "forward", Event: "release"}), ShouldBeNil)
		So(conn.ReadJSON(&resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, drive.STATUS_STOPPED)

		Convey("and unknown edges answer with an error", func() {
			So(conn.WriteJSON(comms.ControlEvent{Control: "forward", Event: "tap"}), ShouldBeNil)
			So(conn.ReadJSON(&resp), ShouldBeNil)
			So(resp.Error, ShouldNotEqual, "")
		})
	})
}

func TestControlSocketLoss(t *testing.T) {
	rov := testRov(t)

	srv := httptest.NewServer(http.HandlerFunc(ControlSocketHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	Convey("A socket dying mid press releases its controls", t, func() {
		So(conn.WriteJSON(comms.ControlEvent{Control: "forward", Event: "press"}), ShouldBeNil)

		var resp StatusResponse
		So(conn.ReadJSON(&resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, drive.STATUS_FORWARD)
		So(rov.Input.Held(drive.CONTROL_FORWARD), ShouldBeTrue)

		So(conn.Close(), ShouldBeNil)

		released := false
		for i := 0; i < 50; i++ {
			if !rov.Input.Held(drive.CONTROL_FORWARD) {
				released = true
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		So(released, ShouldBeTrue)
	})
}

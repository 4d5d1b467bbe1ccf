package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/fantastic4/urov/comms"
	"github.com/fantastic4/urov/logging"
	"github.com/fantastic4/urov/onboard"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type EnvConfig struct {
	JWT_ISSUER     string `env:"UROV_DEVICE_ID" envDefault:"DEV"`
	JWT_SECRET     string `env:"JWT_SECRET"`
	DEBUG          bool   `env:"DEBUG" envDefault:"0"`
	SRCDIR         string `env:"SRCDIR" envDefault:"."`
	HTMLDIR        string `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	DBFILE         string `env:"DBFILE" envDefault:"./tmp/urov.db"`
	LOG_LEVEL      string `env:"LOG_LEVEL" envDefault:"info"`
	LOG_FILE       string `env:"LOG_FILE"`
	MQTT_BROKER    string `env:"MQTT_BROKER"`
	MQTT_CLIENT_ID string `env:"MQTT_CLIENT_ID" envDefault:"urov"`

	DB        *storm.DB
	Conductor *comms.Conductor
	Log       *logrus.Logger
	Simulated bool
}

var (
	ENV *EnvConfig
)

func init() {
	godotenv.Load()

	// Load main config
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}

	if ENV.JWT_SECRET != "" {
		JWT_HMAC_SECRET = []byte(ENV.JWT_SECRET)
	}

	ENV.Log = logging.NewLogger(ENV.LOG_LEVEL, ENV.LOG_FILE)

	// setup database, making sure the parent dir exists for dev runs
	dbFile, _ := filepath.Abs(ENV.DBFILE)
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		os.Mkdir(dir, 0755)
	}

	db, err := openDb(dbFile)
	if err != nil {
		panic(err)
	}
	ENV.DB = db
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run the vehicle in simulator mode")
	console := flag.Bool("console", false, "Start the development shell")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	flag.Parse()

	log := ENV.Log

	defer ENV.DB.Close() // close database when finished

	// Setup the vehicle properly so everything works as expected later
	filename, err := filepath.Abs(filepath.Join(ENV.SRCDIR, "rig_config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	config, err := onboard.LoadConfig(filename)
	if err != nil {
		log.Fatalf("unable to load rig config: %v", err)
	}

	var rov *onboard.Rov
	ENV.Simulated = *simulated
	if ENV.Simulated {
		log.Info("creating simulated vehicle")
		rov = onboard.NewRovSimulator(config, log)
	} else {
		rov, err = onboard.NewRov(config, log)
		if err != nil {
			log.Fatalf("unable to initialize vehicle: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rov.Start(ctx)

	ENV.Conductor = comms.NewConductor(rov, logging.Component(log, "conductor"))
	go ENV.Conductor.UpdateClients(ctx)

	if ENV.MQTT_BROKER != "" {
		bridge, err := comms.NewMQTTBridge(
			ENV.MQTT_BROKER, ENV.MQTT_CLIENT_ID,
			config.Mqtt.ObstacleTopic, config.Mqtt.TelemetryTopic,
			rov.Interlock, logging.Component(log, "mqtt"))
		if err != nil {
			log.WithError(err).Warn("mqtt bridge unavailable, continuing without shore telemetry")
		} else {
			ENV.Conductor.Publisher = bridge
			defer bridge.Close()
		}
	}

	//---
	// Create a local shell
	//---
	if *console {
		shell := ishell.New()
		shell.Println("uROV development shell")
		shell.ShowPrompt(true)
		shell.AddCmd(&ishell.Cmd{
			Name: "createsuperuser",
			Help: "createsuperuser <email> <password>",
			Func: func(c *ishell.Context) {
				// disable the '>>>' for cleaner same line input.
				c.ShowPrompt(false)
				defer c.ShowPrompt(true) // yes, revert when done.

				// get email
				var email string
				if len(c.Args) >= 1 {
					email = c.Args[0]
				} else {
					c.Print("Email: ")
					email = c.ReadLine()
				}

				// get password
				var password string
				if len(c.Args) >= 2 {
					password = c.Args[1]
				} else {
					c.Print("Password: ")
					password = c.ReadPassword()
				}

				// create user
				user := &User{
					Email: email,
					Name:  email,
					Admin: true,
				}
				user.SetPassword([]byte(password))
				err := ENV.DB.Save(user)
				if err != nil {
					panic(err)
				}

				c.Println("Superuser created")
			},
		})

		// Add vehicle specific commands
		shell.AddCmd(&ishell.Cmd{
			Name: "move",
			Help: "move <forward|up|left|right|stop>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(errors.New("usage: move <forward|up|left|right|stop>"))
					return
				}

				cmd := map[string]string{
					"forward": "forward",
					"up":      "ascend",
					"left":    "turn_left",
					"right":   "turn_right",
					"stop":    "stop",
				}[c.Args[0]]
				if cmd == "" {
					c.Err(errors.New("unknown direction " + c.Args[0]))
					return
				}

				status, err := ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: cmd})
				if err != nil {
					c.Err(err)
				}
				c.Println(status)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "speed",
			Help: "speed <microseconds>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(errors.New("usage: speed <microseconds>"))
					return
				}

				width, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}

				status, err := ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "set_speed", Value: float64(width)})
				if err != nil {
					c.Err(err)
				}
				c.Println(status)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "state",
			Help: "Print the current vehicle state",
			Func: func(c *ishell.Context) {
				state := rov.State()
				c.Printf("speed: %dus  obstacle: %v  sensor: %v\n", state.Speed, state.Obstacle, state.SensorOK)
				if state.HasReading {
					c.Printf("water: %.2f°C (%.2f°F), %d readings buffered\n", state.Celsius, state.Fahrenheit, state.Buffered)
				} else {
					c.Println("Measuring temperature...")
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "savetemp",
			Help: "Flush buffered temperature readings to the log",
			Func: func(c *ishell.Context) {
				status, err := ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "save_temp_log"})
				if err != nil {
					c.Err(err)
				}
				c.Println(status)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "obstacle",
			Help: "obstacle <on|off>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(errors.New("usage: obstacle <on|off>"))
					return
				}

				rov.Interlock.Set(c.Args[0] == "on")
				c.Println("obstacle flag:", c.Args[0])
			},
		})

		// Start an instance of the shell so it can be controlled from the CLI
		go shell.Start()
	}

	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Route("/", func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			r.Use(ValidateJWT)

			r.Get("/refresh_token", JWTRefresh)
			r.Post("/command", CommandHandler)
			r.Get("/state", StateHandler)
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			log.Warn("running in debug mode, websocket authentication disabled")
		}

		r.Get("/control", ControlSocketHandler)
		r.Get("/state", StateSocketHandler)
	})

	// add static base routes
	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	srv := &http.Server{Addr: *port, Handler: r}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on %s", *port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}

	// stop the background loops, then idle the thrusters and save the
	// temperature log before the process goes away
	cancel()
	rov.Shutdown()
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&User{}); err != nil {
		return nil, err
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"track-control/closed_loop/control"
	"track-control/closed_loop/sim"
	"track-control/closed_loop/vision"
	"track-control/utils"
)

// connectTimeout bounds the simulator handshake only; the control loop itself has no timeouts.
const connectTimeout = 10 * time.Second

type session interface {
	control.Sender
	io.Closer
}

func main() {
	// A missing .env is fine; the file only seeds defaults for the flags below.
	_ = godotenv.Load()

	var (
		cfgPath  = flag.String("config", "", "Optional JSON config overlaying the built-in defaults")
		source   = flag.String("source", "camera", "camera|scenario")
		scenPath = flag.String("scenario", "config/scenarios/figure_eight.json", "Scenario JSON file for -source scenario")
		cameraID = flag.Int("camera", envInt("TRACKCTL_CAMERA", 0), "Camera device index")
		headless = flag.Bool("headless", false, "Do not open a preview window (stop with Ctrl-C)")
		backend  = flag.String("backend", "airsim", "airsim|can")
		simAddr  = flag.String("sim-addr", envString("TRACKCTL_SIM_ADDR", sim.DefaultAirSimAddr), "AirSim RPC address")
		vehicle  = flag.String("vehicle", "", "AirSim vehicle name (empty for the default car)")
		iface    = flag.String("iface", envString("TRACKCTL_CAN_IFACE", "vcan0"), "SocketCAN interface for -backend can")
		mapPath  = flag.String("map", "config/can/can_map.csv", "Path to can_map.csv for -backend can")
		logLevel = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		logFile  = flag.String("logfile", "track_control.log", "Log file path")
	)
	flag.Parse()

	root, err := utils.NewFileLogger(*logFile, utils.ParseLogLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer root.Close()
	log := root.With("session", uuid.New().String())

	cfg := control.DefaultConfig()
	if *cfgPath != "" {
		cfg, err = control.LoadConfig(*cfgPath)
		if err != nil {
			log.Critical("Load config %s: %v", *cfgPath, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, options{
		source:   *source,
		scenario: *scenPath,
		camera:   *cameraID,
		headless: *headless,
		backend:  *backend,
		simAddr:  *simAddr,
		vehicle:  *vehicle,
		iface:    *iface,
		mapPath:  *mapPath,
	}); err != nil {
		log.Critical("%v", err)
		root.Close()
		os.Exit(1)
	}
}

type options struct {
	source   string
	scenario string
	camera   int
	headless bool
	backend  string
	simAddr  string
	vehicle  string
	iface    string
	mapPath  string
}

// run connects the simulator first, then the detection source, then loops.
func run(ctx context.Context, cfg control.Config, log *utils.Logger, opts options) error {
	sess, err := connectSimulator(ctx, log, opts)
	if err != nil {
		return fmt.Errorf("connect simulator: %w", err)
	}
	defer sess.Close()

	var runnerOpts []control.RunnerOption
	var src control.Source
	switch opts.source {
	case "camera":
		cs, err := openCameraSource(cfg, log, opts)
		if err != nil {
			return err
		}
		defer cs.Close()
		src = cs
		runnerOpts = append(runnerOpts, control.WithExitCheck(cs.ExitRequested))
	case "scenario":
		scen, err := control.LoadScenario(opts.scenario)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		log.Info("Replaying scenario %q (%.1fs)", scen.Meta.Name, scen.Timing.DurationS)
		src = control.NewScenarioSource(scen)
	default:
		return fmt.Errorf("unknown source %q", opts.source)
	}

	runner, err := control.NewRunner(cfg, log, src, sess, runnerOpts...)
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func connectSimulator(ctx context.Context, log *utils.Logger, opts options) (session, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch opts.backend {
	case "airsim":
		c, err := sim.DialAirSim(ctx, opts.simAddr, opts.vehicle, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "can":
		cmap, err := utils.LoadCANMap(opts.mapPath)
		if err != nil {
			return nil, fmt.Errorf("load can map: %w", err)
		}
		s, err := sim.DialCAN(ctx, opts.iface, cmap, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.backend)
	}
}

func openCameraSource(cfg control.Config, log *utils.Logger, opts options) (*vision.CameraSource, error) {
	cam, err := vision.OpenCamera(opts.camera)
	if err != nil {
		return nil, err
	}
	if w, h := cam.Size(); w != cfg.DimX || h != cfg.DimY {
		log.Warn("Camera %d captures %gx%g but dims are %gx%g; centring uses the configured dims",
			opts.camera, w, h, cfg.DimX, cfg.DimY)
	}

	var display *vision.Display
	if !opts.headless {
		display = vision.NewDisplay("Frame", cfg)
	}
	log.Info("Camera %d open; press %q in the preview window to stop", opts.camera, cfg.ExitKey)
	return vision.NewCameraSource(cam, vision.NewLocator(cfg), display), nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(envString(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

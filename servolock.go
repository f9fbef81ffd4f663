package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"servolock/analog"
	"servolock/auth"
	"servolock/button"
	"servolock/indicator"
	"servolock/lock"
	"servolock/mqtt"
	"servolock/servo"
)

var myBuild string

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	logger    *zap.SugaredLogger
	feedback  analog.Source
	servo     *servo.Servo
	ctrl      *lock.Controller
	mqtt      *mqtt.Client
	indicator indicator.Indicator
	button    *button.Button
	web       *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
}

// CommandRequest is a signed command arriving over MQTT.
type CommandRequest struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func main() {
	fmt.Printf("servolock build %s\n", myBuild)

	cfgfile := flag.String("cfg", "servolock.cfg", "Config file")
	nocal := flag.Bool("nocal", false, "Skip the boot calibration (status stays CALIBRATING)")
	flag.Parse()

	// Load configuration
	f, err := os.Open(*cfgfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open config: %v\n", err)
		os.Exit(1)
	}

	var cfg Config
	err = yaml.NewDecoder(f).Decode(&cfg)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck

	if cfg.ClientID == "" {
		logger.Fatal("client_id missing in config file")
	}
	if cfg.Secret == "" {
		logger.Fatal("secret missing in config file")
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		cfg:    &cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	// Feedback source (serial ADC bridge)
	app.feedback, err = analog.New(cfg.Analog)
	if err != nil {
		logger.Fatalf("init analog source: %v", err)
	}

	// Servo
	app.servo, err = servo.New(cfg.Servo, app.feedback, logger)
	if err != nil {
		logger.Fatalf("init servo: %v", err)
	}

	// Lock controller
	app.ctrl = lock.New(cfg.Lock, app.servo, logger)

	// Indicator LEDs
	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		logger.Fatalf("init indicator: %v", err)
	}
	app.indicator.Busy() // boot state is calibrating

	// Recalibrate button
	app.button, err = button.New(cfg.Button, app.onButtonPress)
	if err != nil {
		logger.Fatalf("init button: %v", err)
	}
	if app.button != nil {
		logger.Infof("recalibrate button on pin %d", cfg.Button.Pin)
	}

	// MQTT
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	}, logger)
	if err != nil {
		logger.Fatalf("init mqtt: %v", err)
	}

	// Fan state changes out to the indicator and the broker.
	app.ctrl.OnChange(app.onStateChange)

	// Boot calibration: the machine cannot leave the calibrating state
	// until the feedback maps exist.
	if !*nocal {
		if err := app.ctrl.Calibrate(); err != nil {
			logger.Errorf("boot calibration failed: %v", err)
		}
	}

	// Background goroutines
	go app.ctrl.Run(ctx)
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			logger.Errorf("mqtt connect: %v", err)
		}
	}()
	go app.pingSender()

	app.web = newWebServer(cfg.HTTP, app.ctrl, cfg.Secret, logger)
	go func() {
		logger.Infof("http listening on %s", cfg.HTTP.Listen)
		if err := app.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http serve: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := app.web.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	shutdownCancel()

	app.mqtt.Disconnect()
	if app.button != nil {
		app.button.Release()
	}
	app.indicator.Shutdown()
	app.indicator.Release()
	app.servo.Close()
	app.feedback.Close()

	logger.Info("shutdown complete")
}

// buildLogger creates the console logger used across the daemon.
func buildLogger(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core).Sugar()
}

func (app *App) stateTopic() string {
	return fmt.Sprintf("lock/status/%s/state", app.cfg.ClientID)
}

func (app *App) commandTopic() string {
	return fmt.Sprintf("lock/control/%s/command", app.cfg.ClientID)
}

func (app *App) onStateChange(s lock.State) {
	switch s {
	case lock.Locked:
		app.indicator.Locked()
	case lock.Unlocked:
		app.indicator.Unlocked()
	case lock.Faulted:
		app.indicator.Fault()
	default:
		app.indicator.Busy()
	}

	app.mqtt.PublishRetained(app.stateTopic(), s.Token())
}

func (app *App) onMQTTConnect() {
	if err := app.mqtt.Subscribe(app.commandTopic()); err != nil {
		app.logger.Errorf("subscribe: %v", err)
	}
	app.mqtt.PublishRetained(app.stateTopic(), app.ctrl.Status())
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	if topic != app.commandTopic() {
		return
	}

	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		app.logger.Warnf("decode command request: %v", err)
		return
	}

	// An unauthenticated request degrades to no command at all.
	if !auth.Verify(app.cfg.Secret, req.Nonce, req.Signature) {
		app.logger.Warnf("unauthorized command on %s", topic)
		return
	}

	switch strings.SplitN(req.Nonce, ":", 2)[0] {
	case "lock":
		app.ctrl.Submit(lock.CmdLock)
	case "unlock":
		app.ctrl.Submit(lock.CmdUnlock)
	case "calibrate":
		go func() {
			if err := app.ctrl.Calibrate(); err != nil {
				app.logger.Errorf("calibrate: %v", err)
			}
		}()
	default:
		app.logger.Warnf("unknown command in nonce %q", req.Nonce)
	}
}

// onButtonPress handles the physical recalibrate button, the on-site
// recovery path from a faulted lock.
func (app *App) onButtonPress() {
	app.logger.Info("recalibrate button pressed")
	go func() {
		if err := app.ctrl.Calibrate(); err != nil {
			app.logger.Errorf("calibrate: %v", err)
		}
	}()
}

func (app *App) pingSender() {
	ticker := time.NewTicker(120 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			topic := fmt.Sprintf("lock/status/%s/ping", app.cfg.ClientID)
			app.mqtt.Publish(topic, `{"status":"ok"}`)
		}
	}
}

// Command am2120-sensor reads an AM2120 temperature/humidity sensor on a GPIO
// line and reports each reading to the console, MQTT, Firestore and Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/am2120-sensor/internal/am2120"
	"github.com/sweeney/am2120-sensor/internal/gpio"
	"github.com/sweeney/am2120-sensor/internal/kafka"
	"github.com/sweeney/am2120-sensor/internal/logic"
	"github.com/sweeney/am2120-sensor/internal/metrics"
	"github.com/sweeney/am2120-sensor/internal/mqtt"
	"github.com/sweeney/am2120-sensor/internal/report"
	"github.com/sweeney/am2120-sensor/internal/status"
	"github.com/sweeney/am2120-sensor/internal/web"
)

type config struct {
	backend        string
	chip           string
	pin            int
	interval       time.Duration
	units          logic.Units
	maxPolls       int
	discardInvalid bool
	once           bool
	broker         string
	heartbeat      time.Duration
	httpAddr       string
	fsProject      string
	fsCollection   string
	fsToken        string
	kafkaBrokers   string
	kafkaTopic     string
}

func main() {
	var cfg config
	var units string
	flag.StringVar(&cfg.backend, "backend", "gpiocdev", "GPIO backend: gpiocdev or periph")
	flag.StringVar(&cfg.chip, "chip", gpio.DefaultChip, "GPIO chip (gpiocdev backend)")
	flag.IntVar(&cfg.pin, "pin", gpio.DefaultPin, "BCM pin number of the sensor data line")
	flag.DurationVar(&cfg.interval, "interval", 2*time.Second, "Delay between reads")
	flag.StringVar(&units, "units", string(logic.UnitsTenths), "Reading units: tenths or whole")
	flag.IntVar(&cfg.maxPolls, "max-polls", am2120.DefaultMaxPolls, "Poll limit for each wait on the line")
	flag.BoolVar(&cfg.discardInvalid, "discard-invalid", false, "Drop readings whose checksum does not match")
	flag.BoolVar(&cfg.once, "once", false, "Take one reading, print it and exit")
	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.fsProject, "firestore-project", "", "Firestore project id (empty to disable uploads)")
	flag.StringVar(&cfg.fsCollection, "firestore-collection", "readings", "Firestore collection")
	flag.StringVar(&cfg.fsToken, "firestore-token", os.Getenv("FIRESTORE_TOKEN"), "Firestore bearer token")
	flag.StringVar(&cfg.kafkaBrokers, "kafka-brokers", "", "Comma-separated Kafka brokers (empty to disable)")
	flag.StringVar(&cfg.kafkaTopic, "kafka-topic", kafka.DefaultTopic, "Kafka topic")

	flag.Parse()

	u, err := logic.ParseUnits(units)
	if err != nil {
		log.Fatalf("fatal: -units: %v", err)
	}
	cfg.units = u

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// openLine opens the data line on the selected backend.
func openLine(backend, chip string, pin int) (gpio.Line, error) {
	switch backend {
	case "gpiocdev":
		l, err := gpio.NewRealLine(chip, pin)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "periph":
		l, err := gpio.NewPeriphLine("GPIO" + strconv.Itoa(pin))
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func run(cfg config) error {
	line, err := openLine(cfg.backend, cfg.chip, cfg.pin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	opts := am2120.DefaultOpts()
	opts.Units = cfg.units
	opts.Timing.MaxPolls = cfg.maxPolls
	sensor, err := am2120.NewSensor(line, &opts)
	if err != nil {
		line.Close()
		return fmt.Errorf("init sensor: %w", err)
	}
	defer sensor.Halt()

	var uploader report.Uploader
	if cfg.fsProject != "" {
		uploader = &report.FirestoreUploader{
			Project:    cfg.fsProject,
			Collection: cfg.fsCollection,
			Token:      cfg.fsToken,
		}
	}

	ctx := context.Background()

	// Single shot mode
	if cfg.once {
		l := &loop{
			reader:         sensor,
			uploader:       uploader,
			out:            os.Stdout,
			discardInvalid: cfg.discardInvalid,
			now:            time.Now,
		}
		return l.attempt(ctx, logic.NewStats(time.Now()))
	}

	id := sensorID()
	l := &loop{
		reader:         sensor,
		uploader:       uploader,
		metrics:        metrics.New(),
		out:            os.Stdout,
		heartbeat:      cfg.heartbeat,
		discardInvalid: cfg.discardInvalid,
		now:            time.Now,
	}

	if cfg.broker != "" {
		publisher := mqtt.NewRealPublisher(cfg.broker, "am2120-sensor-"+id)
		defer publisher.Close()
		l.publisher = publisher
		l.mqttStatus = publisher
	}

	if cfg.kafkaBrokers != "" {
		sink, err := kafka.NewSink(kafka.Config{
			Brokers: strings.Split(cfg.kafkaBrokers, ","),
			Topic:   cfg.kafkaTopic,
			Key:     id,
		})
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer sink.Close()
		l.kafka = sink
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	statusCfg := status.Config{
		IntervalMs:  cfg.interval.Milliseconds(),
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Backend:     cfg.backend,
		Pin:         strconv.Itoa(cfg.pin),
		Units:       cfg.units,
		MaxPolls:    cfg.maxPolls,
		Broker:      cfg.broker,
		HTTPAddr:    cfg.httpAddr,
		Firestore:   cfg.fsProject,
	}
	if cfg.backend == "gpiocdev" {
		statusCfg.Chip = cfg.chip
	}
	if l.kafka != nil {
		statusCfg.KafkaTopic = l.kafka.Topic()
	}
	l.tracker = status.NewTracker(time.Now(), statusCfg)
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}

	if l.publisher != nil {
		snap := l.tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := l.publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, l.tracker, l.metrics.Handler(), os.Stderr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: backend=%s pin=%d interval=%v units=%s broker=%s heartbeat=%v",
		cfg.backend, cfg.pin, cfg.interval, cfg.units, cfg.broker, cfg.heartbeat)

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ctx, ticker.C, sigCh)
}

// frameReader is the part of am2120.Sensor the loop uses.
type frameReader interface {
	ReadFrame(ctx context.Context) (logic.RawFrame, error)
	Units() logic.Units
}

// eventSink is the part of kafka.Sink the loop uses.
type eventSink interface {
	Publish(ctx context.Context, event logic.Event) error
	Topic() string
}

// loop reads the sensor on every tick and fans readings out. Nil
// collaborators are skipped.
type loop struct {
	reader     frameReader
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	uploader   report.Uploader
	kafka      eventSink
	metrics    *metrics.Metrics
	tracker    *status.Tracker
	out        io.Writer

	heartbeat      time.Duration
	discardInvalid bool
	now            func() time.Time
}

func (l *loop) run(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	stats := logic.NewStats(l.now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(s)
			return nil

		case <-tick:
			// Failures are logged and counted inside attempt; the loop carries on.
			l.attempt(ctx, stats)

			t := stats.Last().Timestamp
			if hbData := stats.CheckHeartbeat(t, l.heartbeat); hbData != nil {
				l.publishHeartbeat(hbData)
			}

			// Update status tracker for HTTP consumers
			if l.tracker != nil {
				l.tracker.Update(stats)
				if l.mqttStatus != nil {
					l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
				}
			}
		}
	}
}

// attempt performs one read and reports it. It returns the read error, or
// logic.ErrChecksum if a mismatched reading was discarded.
func (l *loop) attempt(ctx context.Context, stats *logic.Stats) error {
	t := l.now()
	start := time.Now()
	frame, err := l.reader.ReadFrame(ctx)
	took := time.Since(start)

	var r logic.Reading
	if err == nil {
		r = logic.Interpret(frame, l.reader.Units())
	}
	event := logic.Event{Timestamp: t, Outcome: am2120.Classify(r, err), Reading: r}
	stats.Record(event)
	if l.metrics != nil {
		l.metrics.ObserveRead(event, took)
	}

	if err != nil {
		log.Printf("read error: %v", err)
		return err
	}

	if !r.ChecksumValid {
		log.Printf("checksum mismatch: humidity=%d temperature=%d checksum=%02X want=%02X frame=%s",
			r.Humidity, r.Temperature, frame[4], logic.Checksum(frame), frame)
		if l.discardInvalid {
			return logic.ErrChecksum
		}
	}

	fmt.Fprintf(l.out, "%s\n", report.FormatConsole(r))
	log.Printf("humidity=%.1f%% temperature=%.1fC", r.HumidityPercent(), r.TemperatureCelsius())

	l.deliver(ctx, event)
	return nil
}

// deliver sends a decoded reading to every configured sink.
func (l *loop) deliver(ctx context.Context, event logic.Event) {
	if l.publisher != nil {
		err := l.publisher.Publish(event)
		if err != nil {
			log.Printf("publish error: %v", err)
		}
		l.observeUpload("mqtt", err)
	}

	if l.kafka != nil {
		err := l.kafka.Publish(ctx, event)
		if err != nil {
			log.Printf("kafka publish error: %v", err)
		}
		l.observeUpload("kafka", err)
	}

	if l.uploader != nil {
		err := l.uploader.Upload(ctx, event.Reading)
		if err != nil {
			log.Printf("firestore upload failed: %v", err)
		} else {
			log.Printf("firestore upload ok")
		}
		l.observeUpload("firestore", err)
	}
}

func (l *loop) observeUpload(sink string, err error) {
	if l.metrics != nil {
		l.metrics.ObserveUpload(sink, err)
	}
}

func (l *loop) publishHeartbeat(hb *logic.HeartbeatData) {
	log.Printf("heartbeat: uptime=%v reads=%d ok=%d checksum_mismatch=%d ack_timeout=%d bit_timeout=%d",
		hb.Uptime, hb.Counts.Total(), hb.Counts.OK, hb.Counts.ChecksumMismatch, hb.Counts.AckTimeout, hb.Counts.BitTimeout)

	if l.publisher == nil {
		return
	}
	hbEvent := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			l.tracker.SetNetwork(net)
		}
		hbEvent.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	if l.publisher == nil {
		return
	}
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", signalName)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// sensorID names this sensor in MQTT client ids and Kafka keys.
func sensorID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

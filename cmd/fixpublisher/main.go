// fixpublisher публикует синтетические отсчеты полета по треугольнику в MQTT
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/flybeeper/taskengine/internal/models"
	mqttclient "github.com/flybeeper/taskengine/internal/mqtt"
)

// FlightConfig параметры синтетического полета
type FlightConfig struct {
	BrokerURL string
	ClientID  string
	Device    string
	Topic     string
	Rate      time.Duration
	Speed     float64 // м/с
	Altitude  float64 // м MSL
	Sink      float64 // м/с
	Legs      []Leg
	Start     models.GeoPoint
	Laps      int
}

// Leg отрезок маршрута: курс и длина
type Leg struct {
	Bearing  float64
	Distance float64 // м
}

// Flight состояние симулятора
type Flight struct {
	config   *FlightConfig
	route    []models.GeoPoint
	leg      int
	position models.GeoPoint
	altitude float64
	clock    float64
	laps     int
}

func main() {
	var (
		brokerURL = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		clientID  = flag.String("client", "taskengine-fix-publisher", "MQTT client ID")
		device    = flag.String("device", "sim-1", "Device ID in topic")
		topic     = flag.String("topic", "taskengine/%s/fix", "Topic pattern, %s is replaced with device")
		rate      = flag.Duration("rate", time.Second, "Fix interval")
		speed     = flag.Float64("speed", 12, "Ground speed m/s")
		alt       = flag.Float64("alt", 1800, "Start altitude m MSL")
		sink      = flag.Float64("sink", 0.8, "Sink rate m/s")
		lat       = flag.Float64("lat", 46.0, "Start latitude")
		lon       = flag.Float64("lon", 13.0, "Start longitude")
		legs      = flag.String("legs", "90:10000,210:10000,330:10000", "Legs as bearing:meters, comma-separated")
		laps      = flag.Int("laps", 1, "Laps to fly (0 = unlimited)")
	)
	flag.Parse()

	route, err := parseLegs(*legs)
	if err != nil {
		log.Fatalf("Invalid legs: %v", err)
	}

	config := &FlightConfig{
		BrokerURL: *brokerURL,
		ClientID:  *clientID,
		Device:    *device,
		Topic:     fmt.Sprintf(*topic, *device),
		Rate:      *rate,
		Speed:     *speed,
		Altitude:  *alt,
		Sink:      *sink,
		Legs:      route,
		Start:     models.NewGeoPoint(*lat, *lon),
		Laps:      *laps,
	}
	if config.Speed <= 0 || config.Rate <= 0 {
		log.Fatal("Speed and rate must be positive")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("Connected to %s", config.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", token.Error())
	}
	defer client.Disconnect(250)

	flight := NewFlight(config)
	log.Printf("Publishing %d legs to %s every %s", len(config.Legs), config.Topic, config.Rate)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(config.Rate)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-sigChan:
			log.Printf("Stopped after %d fixes", published)
			return
		case <-ticker.C:
			payload, done := flight.Next()
			data, err := json.Marshal(payload)
			if err != nil {
				log.Printf("Failed to marshal fix: %v", err)
				continue
			}
			token := client.Publish(config.Topic, 1, false, data)
			if token.Wait() && token.Error() != nil {
				log.Printf("Failed to publish fix: %v", token.Error())
				continue
			}
			published++
			if published%30 == 0 {
				log.Printf("Published %d fixes, leg %d, alt %.0f m", published, flight.leg+1, flight.altitude)
			}
			if done {
				log.Printf("Route complete after %d fixes", published)
				return
			}
		}
	}
}

// NewFlight строит вершины маршрута от стартовой точки
func NewFlight(config *FlightConfig) *Flight {
	route := []models.GeoPoint{config.Start}
	p := config.Start
	for _, l := range config.Legs {
		p = p.EndPoint(l.Bearing, l.Distance)
		route = append(route, p)
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &Flight{
		config:   config,
		route:    route,
		position: config.Start,
		altitude: config.Altitude,
		clock:    now.Sub(midnight).Seconds(),
	}
}

// Next сдвигает планер на один шаг и возвращает отсчет. done выставляется
// после завершения последнего круга.
func (f *Flight) Next() (mqttclient.FixPayload, bool) {
	dt := f.config.Rate.Seconds()
	step := f.config.Speed * dt
	done := false

	target := f.route[f.leg+1]
	track := f.position.Bearing(target)
	for step > 0 {
		remaining := f.position.Distance(target)
		if step < remaining {
			f.position = f.position.EndPoint(track, step)
			break
		}
		f.position = target
		step -= remaining
		f.leg++
		if f.leg+1 >= len(f.route) {
			f.leg = 0
			f.laps++
			if f.config.Laps > 0 && f.laps >= f.config.Laps {
				done = true
				break
			}
		}
		target = f.route[f.leg+1]
		track = f.position.Bearing(target)
	}

	f.clock = math.Mod(f.clock+dt, 86400)
	f.altitude = math.Max(0, f.altitude-f.config.Sink*dt)

	return mqttclient.FixPayload{
		Time:        f.clock,
		Latitude:    f.position.Latitude,
		Longitude:   f.position.Longitude,
		Altitude:    f.altitude,
		GroundSpeed: f.config.Speed,
		Track:       track,
		Vario:       -f.config.Sink,
		Flying:      true,
	}, done
}

func parseLegs(s string) ([]Leg, error) {
	var legs []Leg
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("leg %q: expected bearing:meters", part)
		}
		bearing, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("leg %q: %w", part, err)
		}
		distance, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("leg %q: %w", part, err)
		}
		if distance <= 0 {
			return nil, fmt.Errorf("leg %q: distance must be positive", part)
		}
		legs = append(legs, Leg{Bearing: bearing, Distance: distance})
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("no legs")
	}
	return legs, nil
}

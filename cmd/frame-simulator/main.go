// frame-simulator publishes synthetic floor pressure frames to an MQTT broker
// so a fallcapture deployment can be exercised without sensor hardware.
// A person stands in the middle of the grid, swaying gently, and falls in a
// rotating direction every -fall-every interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/softbio/fallcapture/internal/ingest/mqtt"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
)

// fallFrames is how many frames show the body on the floor after a fall
const fallFrames = 30

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := flag.String("topic", "sensors/floor/frames", "MQTT topic to publish frames on")
	clientID := flag.String("client-id", "frame-simulator", "MQTT client ID")
	rows := flag.Int("rows", 15, "Grid rows")
	cols := flag.Int("cols", 12, "Grid columns")
	rate := flag.Float64("rate", 15, "Frames per second")
	fallEvery := flag.Duration("fall-every", 30*time.Second, "Interval between simulated falls (0 disables falls)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *rows < 3 || *cols < 3 || *rate <= 0 {
		log.Fatalf("grid must be at least 3x3 and rate positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := &config.MQTTData{Broker: *broker, Topic: *topic, ClientID: *clientID}
	pub, err := mqtt.NewPublisher(ctx, cfg, log.Component("mqtt"))
	if err != nil {
		log.Fatalf("could not connect to %s: %v", *broker, err)
	}
	defer pub.Close()

	sim := newSimulator(*rows, *cols)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

	var fallTimer <-chan time.Time
	if *fallEvery > 0 {
		t := time.NewTicker(*fallEvery)
		defer t.Stop()
		fallTimer = t.C
	}

	log.Infof("publishing %dx%d frames at %.1f Hz to %s on %s", *rows, *cols, *rate, *topic, *broker)

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down after %d frames", sent)
			return
		case <-fallTimer:
			d := sim.startFall()
			log.Infof("simulating %s fall", d)
		case now := <-ticker.C:
			if err := pub.Publish(sim.next(now)); err != nil {
				log.Errorf("publish failed: %v", err)
				continue
			}
			sent++
		}
	}
}

type simulator struct {
	rows, cols int
	phase      float64
	falls      int
	fallLeft   int
	direction  types.Direction
}

func newSimulator(rows, cols int) *simulator {
	return &simulator{rows: rows, cols: cols}
}

// startFall queues the next fall, rotating through the four directions
func (s *simulator) startFall() types.Direction {
	s.direction = types.Directions[s.falls%len(types.Directions)]
	s.falls++
	s.fallLeft = fallFrames
	return s.direction
}

func (s *simulator) next(now time.Time) types.Frame {
	f := types.Frame{Grid: s.empty(), Timestamp: now}

	if s.fallLeft > 0 {
		s.impact(f.Grid)
		if s.fallLeft == fallFrames {
			f.FallProbability = 0.95
			f.FallDetected = true
		} else {
			f.FallProbability = 0.6
		}
		s.fallLeft--
		return f
	}

	// Two feet around the center, with the weight shifting slowly between them
	s.phase += 0.1
	r := s.rows / 2
	left, right := s.cols/2-1, s.cols/2
	shift := 0.1 * math.Sin(s.phase)
	f.Grid[r][left] = 0.4 + shift
	f.Grid[r][right] = 0.4 - shift
	f.FallProbability = 0.02 + 0.03*rand.Float64()
	return f
}

// impact lays the body against the edge of the grid the fall points toward
func (s *simulator) impact(g [][]float64) {
	r0, r1 := s.rows/2-1, s.rows/2
	c0, c1 := s.cols/2-1, s.cols/2

	switch s.direction {
	case types.DirectionForward:
		r0, r1 = s.rows-2, s.rows-1
	case types.DirectionBackward:
		r0, r1 = 0, 1
	case types.DirectionRight:
		c0, c1 = s.cols-2, s.cols-1
	case types.DirectionLeft:
		c0, c1 = 0, 1
	}

	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			g[r][c] = 0.9
		}
	}
}

func (s *simulator) empty() [][]float64 {
	g := make([][]float64, s.rows)
	for i := range g {
		g[i] = make([]float64, s.cols)
	}
	return g
}

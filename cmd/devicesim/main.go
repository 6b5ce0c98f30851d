// Command devicesim plays a scripted device session onto the MQTT topics the
// watchdog listens on. A script is a CSV file with the columns
// offset,kind,gps,network,available,lat,lng; kind is one of providers,
// availability or fix. Without -script a built-in session is played.
//
// Usage:
//
//	go run ./cmd/devicesim \
//	  -broker tcp://localhost:1883 \
//	  -device phone-7 \
//	  -script data/sessions/commute.csv
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// step is one scripted device report.
type step struct {
	Offset  time.Duration `json:"offset"`
	Topic   string        `json:"topic"`
	Payload string        `json:"payload"`
}

const defaultScript = `offset,kind,gps,network,available,lat,lng
0s,providers,false,false,,,
1s,providers,true,false,,,
2s,availability,,,false,,
3s,fix,,,,52.231958,21.006725
4s,availability,,,true,,
6s,fix,,,,52.229676,21.012229
8s,providers,false,false,,,
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	deviceID := flag.String("device", "default", "device id used in topic names")
	script := flag.String("script", "", "CSV session script (built-in session when empty)")
	out := flag.String("out", "", "write the resolved session as JSON instead of publishing")
	flag.Parse()

	var r io.Reader = strings.NewReader(defaultScript)
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		r = f
	}

	steps, err := parseScript(r, *deviceID)
	if err != nil {
		return err
	}
	log.Printf("session: %d steps over %s", len(steps), steps[len(steps)-1].Offset)

	if *out != "" {
		if err := writeJSON(*out, steps); err != nil {
			return fmt.Errorf("writing session: %w", err)
		}
		log.Printf("wrote session: %s", *out)
		return nil
	}

	clientID := fmt.Sprintf("%s-simulator-%d", *deviceID, time.Now().UnixNano())
	opts := paho.NewClientOptions().AddBroker(*broker).SetClientID(clientID)
	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker %s as %s", *broker, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return play(ctx, client, steps)
}

func play(ctx context.Context, client paho.Client, steps []step) error {
	start := time.Now()
	for _, s := range steps {
		wait := time.Until(start.Add(s.Offset))
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, stopping session")
			return nil
		case <-time.After(wait):
		}

		token := client.Publish(s.Topic, 1, false, s.Payload)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", s.Topic, err)
		}
		log.Printf("published %s %s", s.Topic, s.Payload)
	}
	return nil
}

// parseScript turns a session CSV into topic/payload steps ordered by offset.
func parseScript(r io.Reader, deviceID string) ([]step, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	steps := make([]step, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		offset, err := time.ParseDuration(get(row, colIdx, "offset"))
		if err != nil {
			return nil, fmt.Errorf("line %d: offset: %w", line, err)
		}

		kind := get(row, colIdx, "kind")
		var payload any
		switch kind {
		case "providers":
			payload = map[string]bool{
				"gps":     get(row, colIdx, "gps") == "true",
				"network": get(row, colIdx, "network") == "true",
			}
		case "availability":
			payload = map[string]bool{"available": get(row, colIdx, "available") == "true"}
		case "fix":
			lat, err := strconv.ParseFloat(get(row, colIdx, "lat"), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: lat: %w", line, err)
			}
			lng, err := strconv.ParseFloat(get(row, colIdx, "lng"), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: lng: %w", line, err)
			}
			payload = map[string]float64{"lat": lat, "lng": lng}
		default:
			return nil, fmt.Errorf("line %d: unknown kind %q", line, kind)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		steps = append(steps, step{
			Offset:  offset,
			Topic:   fmt.Sprintf("devices/%s/%s", deviceID, kind),
			Payload: string(data),
		})
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Offset < steps[j].Offset })
	return steps, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

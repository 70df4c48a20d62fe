// Command check_cam probes local capture hardware: it lists the V4L2
// nodes present on the host and pulls one frame from the selected
// device to confirm ffmpeg can open it.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/camera"
)

func main() {
	device := flag.String("device", "", "device node to probe, tries the candidate ladder when unset")
	index := flag.Int("index", 0, "camera index when -device is unset")
	width := flag.Int("width", 640, "requested capture width")
	height := flag.Int("height", 480, "requested capture height")
	fps := flag.Int("fps", 15, "requested capture rate")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for the first frame")
	flag.Parse()

	devices := camera.Discover()
	if len(devices) == 0 {
		fmt.Println("no /dev/video* nodes found")
	}
	for _, d := range devices {
		fmt.Println("found", d)
	}

	prefs := camera.Prefs{Width: *width, Height: *height, FPS: *fps, MJPEG: true}
	if err := probe(*device, *index, prefs, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "check_cam:", err)
		os.Exit(1)
	}
}

func probe(device string, index int, prefs camera.Prefs, timeout time.Duration) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()

	src := camera.NewFFmpeg(camera.Options{
		Device: device,
		Index:  index,
		Prefs:  func() camera.Prefs { return prefs },
	}, log, nil)
	if err := src.Start(); err != nil {
		return err
	}
	defer src.Stop()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f := src.Frame(); f != nil {
			b := f.Image.Bounds()
			fmt.Printf("captured %dx%d frame\n", b.Dx(), b.Dy())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("no frame within %s", timeout)
}

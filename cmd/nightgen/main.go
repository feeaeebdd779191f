// Command nightgen writes a simulated night of snores, speech and silence to
// a 16-bit mono WAV file for use with `snore-monitor analyze`.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"snore-monitor-service/internal/service/audio"
	"snore-monitor-service/internal/service/audio/synthetic"
	"snore-monitor-service/internal/service/signal"
)

func main() {
	out := flag.String("out", "night.wav", "Output WAV path")
	loops := flag.Int("loops", 20, "Number of simulated night cycles")
	sampleRate := flag.Int("rate", signal.SampleRateHz, "Sample rate in Hz")
	flag.Parse()

	if *loops <= 0 {
		log.Fatal("loops must be positive")
	}

	src := synthetic.New(synthetic.Options{
		SampleRate: *sampleRate,
		Loops:      *loops,
	})
	ctx := context.Background()
	if err := src.Open(ctx); err != nil {
		log.Fatalf("Failed to open synthetic source: %v", err)
	}
	defer src.Close()

	var samples []int16
	var frameNum int
	for {
		frame, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read frame: %v", err)
		}
		samples = append(samples, frame.Samples...)
		frameNum++
		if frameNum%500 == 0 {
			log.Printf("Generated %d frames (%d samples)", frameNum, len(samples))
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	if err := audio.WriteWav(f, *sampleRate, samples); err != nil {
		_ = f.Close()
		log.Fatalf("Failed to write WAV: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", *out, err)
	}

	seconds := float64(len(samples)) / float64(*sampleRate)
	log.Printf("Wrote %s: %d frames, %.1fs at %d Hz", *out, frameNum, seconds, *sampleRate)
}

// Package doctor runs interactive system diagnostics: microphone capture,
// voice-activity detection, the streaming pipeline (against a loopback
// session), clipboard access, and the log directory.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/live"
	"murmur/log"
	"murmur/pcm"
	"murmur/vad"
)

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run() int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("murmur doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	allPass := true

	samples := checkMicrophone(&allPass)
	if samples != nil {
		checkVAD(samples, &allPass)
	}
	if !checkPipeline() {
		allPass = false
	}
	if !checkClipboard() {
		allPass = false
	}
	if !checkLogDir() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

// checkMicrophone records three seconds and reports the signal level. It
// returns the captured samples for the VAD check, or nil on failure.
func checkMicrophone(allPass *bool) []float32 {
	fmt.Println()
	fmt.Println("[1/5] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		*allPass = false
		return nil
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		*allPass = false
		return nil
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		*allPass = false
		return nil
	}

	device := pickDevice(devices)
	if device == nil {
		*allPass = false
		return nil
	}
	fmt.Printf("Using device: %s\n", device.Name)
	if audio.IsBluetooth(device.Name) {
		fmt.Println("  Warning: Bluetooth microphones often capture at reduced quality")
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	samples, err := recordFor(ctx, device, 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		*allPass = false
		return nil
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		*allPass = false
		return nil
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))

	fmt.Printf("  Captured %.1fs of audio, signal level %.4f\n",
		float64(len(samples))/float64(pcm.SampleRate), rms)
	if rms < 0.001 {
		fmt.Println("  FAIL: signal is silent - check microphone permissions and input volume")
		*allPass = false
		return samples
	}
	fmt.Println("  PASS: microphone delivers audio")
	return samples
}

func pickDevice(devices []audio.DeviceInfo) *audio.DeviceInfo {
	if len(devices) == 1 {
		return &devices[0]
	}
	fmt.Println()
	fmt.Println("Select input device:")
	for i, d := range devices {
		fmt.Printf("  %d. %s\n", i+1, d.Name)
	}
	fmt.Printf("Choice [1-%d]: ", len(devices))

	reader := bufio.NewReader(os.Stdin)
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(choice)
	idx := 0
	if choice != "" {
		fmt.Sscanf(choice, "%d", &idx)
		idx--
	}
	if idx < 0 || idx >= len(devices) {
		fmt.Println("  FAIL: invalid choice")
		return nil
	}
	return &devices[idx]
}

func recordFor(ctx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]float32, error) {
	capture, err := ctx.NewCapture(device, audio.DefaultConfig())
	if err != nil {
		return nil, err
	}
	defer capture.Close()

	var mu sync.Mutex
	var buf []float32
	capture.SetCallback(func(samples []float32) {
		mu.Lock()
		buf = append(buf, samples...)
		mu.Unlock()
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		return nil, err
	}

	fmt.Print("  Recording")
	done := make(chan struct{})
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	time.Sleep(d)
	close(done)
	capture.Stop()
	capture.ClearCallback()
	fmt.Println(" done")

	mu.Lock()
	defer mu.Unlock()
	return buf, nil
}

func checkVAD(samples []float32, allPass *bool) {
	fmt.Println()
	fmt.Println("[2/5] Voice activity detection")

	v, err := vad.New()
	if err != nil {
		fmt.Printf("  FAIL: vad init: %v\n", err)
		*allPass = false
		return
	}

	for off := 0; off < len(samples); off += pcm.FrameSize {
		end := off + pcm.FrameSize
		if end > len(samples) {
			end = len(samples)
		}
		v.Process(pcm.Pack(samples[off:end]))
	}

	if v.HasSpeechTick() {
		fmt.Println("  PASS: speech detected in the recording")
	} else {
		fmt.Println("  Warning: no speech detected - did you speak during the recording?")
	}
}

// checkPipeline streams synthetic frames through a loopback session and
// verifies transcription updates come back in order.
func checkPipeline() bool {
	fmt.Println()
	fmt.Println("[3/5] Streaming pipeline (loopback)")

	sess := live.Dial(context.Background(), live.EchoDialer("pipeline self test ok", 1))
	defer sess.Close()

	frame := make([]float32, pcm.FrameSize)
	for i := 0; i < 4; i++ {
		if err := sess.Send(pcm.EncodeFrame(frame)); err != nil {
			fmt.Printf("  FAIL: send error: %v\n", err)
			return false
		}
	}

	var text string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-sess.Updates():
			text += u.Text
			if u.TurnComplete {
				if text == "pipeline self test ok" {
					fmt.Println("  PASS: frames round-tripped through the session")
					return true
				}
				fmt.Printf("  FAIL: unexpected transcript %q\n", text)
				return false
			}
		case err := <-sess.Fatal():
			fmt.Printf("  FAIL: session error: %v\n", err)
			return false
		case <-timeout:
			fmt.Println("  FAIL: timeout waiting for updates")
			return false
		}
	}
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/5] Clipboard")

	testStr := "murmur-doctor-test"
	if err := clipboard.Copy(testStr); err != nil {
		fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		fmt.Printf("  FAIL: clipboard read failed: %v\n", err)
		return false
	}
	if got != testStr {
		fmt.Printf("  FAIL: clipboard round-trip mismatch (got %q)\n", got)
		return false
	}
	fmt.Println("  PASS: clipboard round-trip verified")
	return true
}

func checkLogDir() bool {
	fmt.Println()
	fmt.Println("[5/5] Log directory")

	dir, err := log.ResolveDir("")
	if err != nil {
		fmt.Printf("  FAIL: cannot resolve log directory: %v\n", err)
		return false
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		fmt.Printf("  FAIL: cannot create %s: %v\n", dir, err)
		return false
	}
	probe, err := os.CreateTemp(dir, "doctor-*.tmp")
	if err != nil {
		fmt.Printf("  FAIL: %s is not writable: %v\n", dir, err)
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	fmt.Printf("  PASS: %s is writable\n", dir)
	return true
}

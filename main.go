package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/doctor"
	"murmur/live"
	"murmur/log"
	"murmur/recorder"
	"murmur/shutdown"
	"murmur/vad"
)

var version = "dev"

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

var shutdownOnce sync.Once

func gracefulShutdown(rec *recorder.Recorder, recordings func() int) {
	shutdownOnce.Do(func() {
		if rec != nil {
			rec.Stop()
		}
		if n := recordings(); n > 0 {
			log.SessionEnd(n)
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

// tuiSink forwards recorder events to the Bubble Tea program and counts
// completed recordings, however they ended (user stop, auto-stop, or
// failure teardown). The recorder already writes the diagnostic log; this
// layer is display only.
type tuiSink struct {
	recordings atomic.Int64
}

func (s *tuiSink) RecordingChanged(recording bool) {
	if recording {
		tuiSend(RecordingStartMsg{})
		beep.Start()
	} else {
		s.recordings.Add(1)
		tuiSend(RecordingStopMsg{})
		beep.End()
	}
}

func (s *tuiSink) count() int { return int(s.recordings.Load()) }

func (s *tuiSink) TranscriptChanged(text string) { tuiSend(TranscriptMsg{Text: text}) }
func (s *tuiSink) AudioLevel(level float64)      { tuiSend(AudioLevelMsg{Level: level}) }

func (s *tuiSink) SilenceWarning(active bool) {
	tuiSend(SilenceWarningMsg{Active: active})
	if active {
		beep.Warn()
	}
}
func (s *tuiSink) Notice(msg string) { tuiSend(StatusMsg{Text: msg}) }
func (s *tuiSink) Error(msg string)  { tuiSend(ErrorMsg{Text: msg}) }

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func endpointLineText(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return "service: " + u.Host
}

func main() {
	endpointFlag := flag.String("endpoint", "", "transcription service WebSocket endpoint (default: MURMUR_ENDPOINT or the public service)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	autoStopFlag := flag.Bool("autostop", false, "Stop recording automatically after prolonged silence")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	// Local .env for the API key during development.
	godotenv.Load()

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *doctorFlag {
		os.Exit(doctor.Run())
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], *autoStopFlag)
		return
	}

	endpoint := *endpointFlag
	if endpoint == "" {
		endpoint = os.Getenv("MURMUR_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY is not set")
		os.Exit(1)
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			fmt.Printf("Warning: device %q not found, using default\n", *deviceFlag)
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	capture, err := ctx.NewCapture(selectedDevice, audio.DefaultConfig())
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Printf("Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(endpoint, capture.DeviceName())

	var detector recorder.SpeechDetector
	if v, err := vad.New(); err != nil {
		log.Warnf("vad init failed, silence monitoring disabled: %v", err)
	} else {
		detector = v
	}

	dialer := live.WebsocketDialer(live.Config{Endpoint: endpoint, APIKey: apiKey})
	sink := &tuiSink{}
	rec := recorder.New(capture, dialer, sink, detector, recorder.Config{AutoStop: *autoStopFlag})

	intents := make(chan intent, 4)
	tuiMu.Lock()
	tuiProgram = NewTUIProgram(intents)
	tuiMu.Unlock()

	go func() {
		if _, err := tuiProgram.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
			os.Exit(1)
		}
		gracefulShutdown(rec, sink.count)
	}()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(rec, sink.count)
	}()

	go beep.Init()

	tuiSend(EndpointLineMsg{Text: endpointLineText(endpoint)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})

	for in := range intents {
		switch in {
		case intentToggle:
			if rec.State() == recorder.Recording {
				rec.Stop()
			} else {
				rec.Start()
			}
		case intentCopy:
			text := rec.Transcript()
			if text == "" {
				continue
			}
			if err := clipboard.Copy(text); err != nil {
				log.Warnf("clipboard copy failed: %v", err)
				tuiSend(ErrorMsg{Text: "clipboard copy failed"})
			} else {
				tuiSend(CopiedMsg{})
			}
		}
	}
}

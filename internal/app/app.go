package app

import (
	"context"

	"github.com/nestdesk/nestdesk/internal/assistant/chat"
	"github.com/nestdesk/nestdesk/internal/assistant/voice"
	"github.com/nestdesk/nestdesk/internal/config"
	"github.com/nestdesk/nestdesk/internal/relay"
	"github.com/nestdesk/nestdesk/internal/server"
	"github.com/nestdesk/nestdesk/pkg/Logger"
	"github.com/nestdesk/nestdesk/pkg/providers/llm"
	openaillm "github.com/nestdesk/nestdesk/pkg/providers/llm/openai"
	"github.com/nestdesk/nestdesk/pkg/providers/stt"
	"github.com/nestdesk/nestdesk/pkg/providers/stt/whisper"
	"github.com/nestdesk/nestdesk/pkg/providers/tts"
	"github.com/nestdesk/nestdesk/pkg/providers/tts/elevenlabs"
)

// App holds the process-wide components with their dependencies wired.
type App struct {
	Config   *config.Settings
	Logger   *Logger.Logger
	Upstream relay.Upstream
	Hub      *relay.Hub

	Transcriber stt.Transcriber
	Completer   llm.Provider
	Synthesizer tts.Synthesizer

	Driver       *chat.Driver
	Orchestrator *voice.Orchestrator
	ServerDeps   server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}
	if err := a.setupDependencies(); err != nil {
		return nil, err
	}
	return a, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies() error {
	// 1. Relay: one upstream link shared by every client connection
	a.Upstream = relay.NewUpstream(a.Config.Upstream, a.Logger.Named("upstream"))
	a.Hub = relay.NewHub(a.Upstream, a.Logger.Named("hub"))

	// 2. Assistant providers
	a.Transcriber = whisper.New(
		a.Config.Providers.WhisperURL,
		a.Config.Providers.STTTimeout,
		a.Logger.Named("whisper"),
	)
	a.Completer = openaillm.New(a.Config.Providers.OpenAIApiKey)

	synth, err := elevenlabs.New(elevenlabs.Config{
		APIKey:  a.Config.Providers.ElevenLabsApiKey,
		VoiceID: a.Config.Providers.ElevenLabsVoice,
		Timeout: a.Config.Providers.TTSTimeout,
	}, a.Logger.Named("elevenlabs"))
	if err != nil {
		return err
	}
	a.Synthesizer = synth

	// 3. Pipelines
	a.Driver = chat.NewDriver(a.Completer, a.Config.Providers.LLMTimeout, a.Logger.Named("chat"))
	a.Orchestrator = voice.NewOrchestrator(
		a.Transcriber,
		a.Completer,
		a.Synthesizer,
		voice.Timeouts{
			Transcribe: a.Config.Providers.STTTimeout,
			Complete:   a.Config.Providers.LLMTimeout,
			Synthesize: a.Config.Providers.TTSTimeout,
		},
		a.Logger.Named("voice"),
	)

	// 4. HTTP deps
	a.ServerDeps = server.NewServerDependencies(a.Hub, a.Driver, a.Orchestrator, a.Logger, a.Config)
	return nil
}

// Start brings up the background components. The upstream dials in its
// own goroutine; clients can connect to the hub before the link is up
// and simply miss upstream traffic until it settles.
func (a *App) Start(ctx context.Context) {
	a.Upstream.Connect(ctx)
	go a.Hub.Run(ctx)
}

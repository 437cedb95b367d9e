package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/archive"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/capture"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/dialin"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/server"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/summary"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/transcriber"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Recognizer struct {
		Provider         string `yaml:"provider"` // "vosk" or "assemblyai"
		ServerURL        string `yaml:"server_url"`
		APIKey           string `yaml:"api_key"`
		SampleRate       int    `yaml:"sample_rate"`
		RestartBackoffMs int    `yaml:"restart_backoff_ms"`
	} `yaml:"recognizer"`
	Capture struct {
		ChunkIntervalMs  int `yaml:"chunk_interval_ms"`
		AcquireTimeoutMs int `yaml:"acquire_timeout_ms"`
	} `yaml:"capture"`
	Archive struct {
		OutputDir       string `yaml:"output_dir"`
		SaveTranscripts bool   `yaml:"save_transcripts"`
		SaveRecordings  bool   `yaml:"save_recordings"`
		RedisAddr       string `yaml:"redis_addr"`
		RedisPrefix     string `yaml:"redis_prefix"`
		TTLHours        int    `yaml:"ttl_hours"`
	} `yaml:"archive"`
	DialIn struct {
		Addr             string `yaml:"addr"`
		AnnouncementFile string `yaml:"announcement_file"`
	} `yaml:"dialin"`
	Summarizer struct {
		APIURL string `yaml:"api_url"`
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"summarizer"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	config := defaultConfig()
	if err := loadConfig(configFile, config); err != nil {
		log.Fatal().Err(err).Str("path", configFile).Msg("failed to load config")
	}
	setupLogging(config)

	store, err := archive.New(archive.Config{
		OutputDir:       config.Archive.OutputDir,
		SaveTranscripts: config.Archive.SaveTranscripts,
		SaveRecordings:  config.Archive.SaveRecordings,
		RedisAddr:       config.Archive.RedisAddr,
		RedisPrefix:     config.Archive.RedisPrefix,
		TTL:             time.Duration(config.Archive.TTLHours) * time.Hour,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create archive store")
	}
	defer store.Close()

	factory := recognizerFactory(config)

	bridge := server.NewBridge()
	svc := capture.NewService(capture.Config{
		ChunkInterval:  time.Duration(config.Capture.ChunkIntervalMs) * time.Millisecond,
		RestartBackoff: time.Duration(config.Recognizer.RestartBackoffMs) * time.Millisecond,
		AcquireTimeout: time.Duration(config.Capture.AcquireTimeoutMs) * time.Millisecond,
	}, bridge, factory, store)

	var summarizer server.Summarizer
	if config.Summarizer.APIKey != "" {
		summarizer = summary.NewClient(config.Summarizer.APIURL, config.Summarizer.APIKey, config.Summarizer.Model)
	}

	srv := server.New(server.Config{Addr: config.Server.Addr}, svc, bridge, store, summarizer)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	var dialinListener *dialin.Listener
	if config.DialIn.Addr != "" {
		dialinListener, err = dialin.New(dialin.Config{
			Addr:             config.DialIn.Addr,
			AnnouncementFile: config.DialIn.AnnouncementFile,
		}, svc)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create dial-in listener")
		}
		go func() {
			if err := dialinListener.Start(); err != nil {
				log.Fatal().Err(err).Msg("dial-in listener failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc.StopAll(ctx)
	if dialinListener != nil {
		dialinListener.Stop()
	}
	if err := srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
}

func recognizerFactory(config *Config) transcriber.Factory {
	sampleRate := config.Recognizer.SampleRate
	if config.Recognizer.Provider == "assemblyai" {
		apiKey := config.Recognizer.APIKey
		return func() (transcriber.Recognizer, error) {
			return transcriber.NewAssemblyAIRecognizer(apiKey, sampleRate)
		}
	}
	serverURL := config.Recognizer.ServerURL
	return func() (transcriber.Recognizer, error) {
		return transcriber.NewVoskRecognizer(serverURL, sampleRate)
	}
}

func defaultConfig() *Config {
	c := &Config{}
	c.Server.Addr = ":8080"
	c.Recognizer.Provider = "vosk"
	c.Recognizer.ServerURL = "ws://localhost:2700"
	c.Recognizer.SampleRate = 16000
	c.Recognizer.RestartBackoffMs = 100
	c.Capture.ChunkIntervalMs = 1000
	c.Capture.AcquireTimeoutMs = 30000
	c.Archive.OutputDir = "./captures"
	c.Archive.SaveTranscripts = true
	c.Archive.SaveRecordings = true
	c.Logging.Level = "info"
	return c
}

func loadConfig(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// Run on defaults when no config file is present.
			return nil
		}
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	return decoder.Decode(config)
}

func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !config.Logging.JSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

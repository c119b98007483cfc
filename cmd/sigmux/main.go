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
	"gopkg.in/yaml.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"golang.org/x/sync/errgroup"

	"github.com/sigmux/sigmux/pkg/dsp/chandet"
	"github.com/sigmux/sigmux/pkg/sigmux"
	"github.com/sigmux/sigmux/pkg/sigmux/config"
	"github.com/sigmux/sigmux/pkg/source"
	fileSource "github.com/sigmux/sigmux/pkg/source/file"
	"github.com/sigmux/sigmux/pkg/source/synth"
	"github.com/sigmux/sigmux/pkg/status"
	"github.com/sigmux/sigmux/pkg/util"
)

const defaultInfoInterval = 5 * time.Second

func carrierControl(name string) sigmux.CarrierControl {
	switch name {
	case "costas2":
		return sigmux.CarrierControlCostas2
	case "costas4":
		return sigmux.CarrierControlCostas4
	default:
		return sigmux.CarrierControlManual
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "sigmux.yaml", "YAML config file")
	flag.Parse()

	configContents, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error reading config file")
	}
	var cfg config.Config
	if err := yaml.Unmarshal(configContents, &cfg); err != nil {
		log.Fatal().Err(err).Msg("error unmarshaling yaml file")
	}

	var src source.Source

	switch cfg.Source {
	case "file":
		log.Info().Str("source", "file").Str("path", cfg.PlaybackLocation).Msg("initializing source...")
		src, err = fileSource.NewFileSource(cfg.PlaybackLocation, cfg.BufferSize, cfg.SampleRate)
		if err != nil {
			log.Fatal().Str("source", "file").Err(err).Msg("failed to open capture")
		}
	default:
		log.Info().Str("source", "synth").Msg("initializing source...")
		src = synth.NewBPSKSource(synth.Options{
			SampleRate:    cfg.SampleRate,
			BufferSize:    cfg.BufferSize,
			CarrierOffset: cfg.Synth.CarrierOffset,
			Baud:          cfg.Synth.Baud,
			Amplitude:     cfg.Synth.Amplitude,
			Noise:         cfg.Synth.Noise,
		})
	}

	options := []sigmux.AnalyzerOption{sigmux.WithLogger(log.Logger)}
	if cfg.InfluxDB.Host != "" {
		writeAPI := influxdb2.NewClient(cfg.InfluxDB.Host, "").
			WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
		options = append(options, sigmux.WithWriteAPI(writeAPI))
	}

	analyzer, err := sigmux.NewAnalyzer(src, sigmux.Options{
		SampleRate:     cfg.SampleRate,
		BufferSize:     cfg.BufferSize,
		Workers:        cfg.Workers,
		SweepInterval:  cfg.SweepInterval,
		UseMessagePool: cfg.UseMessagePool,
	}, options...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create analyzer")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}
		return analyzer.Stop()
	})

	eg.Go(func() error {
		return analyzer.Start(ctx)
	})

	if cfg.StatusServer.Port > 0 {
		statusServer := status.NewServer(cfg.StatusServer.Port, analyzer)
		eg.Go(func() error {
			return statusServer.Run(ctx)
		})
		eg.Go(func() error {
			<-ctx.Done()
			statusServer.Stop(context.TODO())
			return nil
		})
	}

	eg.Go(func() error {
		return watchChannels(ctx, analyzer, cfg)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}

// watchChannels opens the configured inspectors, then periodically
// logs their baud estimates and drains symbol batches.
func watchChannels(ctx context.Context, analyzer *sigmux.Analyzer, cfg config.Config) error {
	handles := make(map[sigmux.Handle]config.Channel)

	for _, ch := range cfg.Channels {
		handle, err := analyzer.Open(chandet.Channel{Fc: ch.Fc, Bw: ch.Bw})
		if err != nil {
			log.Error().Err(err).
				Str("fc", util.HzString(ch.Fc)).
				Str("bw", util.HzString(ch.Bw)).
				Msg("failed to open inspector")
			continue
		}

		if err := analyzer.SetParams(handle, sigmux.Params{
			InspectorID: ch.InspectorID,
			FcCtrl:      carrierControl(ch.CarrierControl),
			FcOff:       float32(ch.FcOff),
			FcPhi:       float32(ch.FcPhi),
			Baud:        float32(ch.Baud),
			SymPhase:    float32(ch.SymPhase),
		}); err != nil {
			log.Error().Err(err).Int32("handle", int32(handle)).Msg("failed to set params")
			continue
		}

		log.Info().
			Int32("handle", int32(handle)).
			Uint32("inspector_id", ch.InspectorID).
			Str("fc", util.HzString(ch.Fc)).
			Str("bw", util.HzString(ch.Bw)).
			Msg("inspector open")

		handles[handle] = ch
	}

	infoInterval := cfg.InfoInterval
	if infoInterval == 0 {
		infoInterval = defaultInfoInterval
	}

	infoTick := time.NewTicker(infoInterval)
	drainTick := time.NewTicker(100 * time.Millisecond)
	defer infoTick.Stop()
	defer drainTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-drainTick.C:
			for {
				batch, ok := analyzer.PollSamples()
				if !ok {
					break
				}
				log.Debug().
					Uint32("inspector_id", batch.InspectorID).
					Int("symbols", len(batch.Samples)).
					Msg("symbol batch")
			}

		case <-infoTick.C:
			for handle, ch := range handles {
				baud, err := analyzer.GetInfo(handle)
				if err != nil {
					log.Warn().Err(err).Int32("handle", int32(handle)).Msg("get-info failed")
					continue
				}
				log.Info().
					Uint32("inspector_id", ch.InspectorID).
					Str("fac", util.HzString(baud.FAC)).
					Str("nln", util.HzString(baud.NLN)).
					Msg("baud estimate")
			}
		}
	}
}

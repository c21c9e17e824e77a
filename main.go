package main

import (
	"context"
	"fmt"
	"github.com/ardanlabs/conf"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/securefed/go-coordinator/audit"
	"github.com/securefed/go-coordinator/factory"
	"github.com/securefed/go-coordinator/metrics"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/processor"
	"github.com/securefed/go-coordinator/rpc"
	"github.com/securefed/go-coordinator/store"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/validator"
	"github.com/securefed/go-coordinator/validator/aggregation"
	"github.com/securefed/go-coordinator/validator/quarantine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const prefix = "SECUREFED"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	var cfg struct {
		Server struct {
			ShutdownTimeout time.Duration `conf:"default:5s"`
			HttpHost        string        `conf:"default:0.0.0.0:8000"`
			GrpcHost        string        `conf:"default:0.0.0.0:8001"`
			KeepServing     bool          `conf:"default:false"`
		}
		Coordinator struct {
			MinFitNodes          int           `conf:"default:2"`
			MinAvailableNodes    int           `conf:"default:2"`
			FitFraction          float64       `conf:"default:1.0"`
			NumRounds            int           `conf:"default:3"`
			RoundTimeout         time.Duration `conf:"default:30s"`
			CollectAllInvited    bool          `conf:"default:false"`
			FailedRoundPolicy    string        `conf:"default:retry"`
			MaxRoundRetries      int           `conf:"default:3"`
			Seed                 int64         `conf:"default:42"`
			LocalEpochs          int           `conf:"default:1"`
			BatchSize            int           `conf:"default:32"`
			Evaluate             bool          `conf:"default:true"`
			KnownBadFingerprints []string
		}
		Store struct {
			StorageFolder string `conf:"default:store"`
			AuditCsvPath  string `conf:"default:training_metrics.csv"`
		}
		Simulation struct {
			HonestNodes      int     `conf:"default:2"`
			AdversarialNodes int     `conf:"default:1"`
			AdversarialMode  string  `conf:"default:poison-sentinel"`
			Dimensions       int     `conf:"default:10"`
			TargetValue      float64 `conf:"default:1.0"`
			TargetSpread     float64 `conf:"default:0.1"`
			LearningRate     float64 `conf:"default:0.5"`
			MinSamples       uint64  `conf:"default:50"`
			MaxSamples       uint64  `conf:"default:500"`
			Seed             int64   `conf:"default:7"`
		}
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config usage")
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil
		}
		return errors.Wrap(err, "parsing config")
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return errors.Wrap(err, "generating config for output")
	}
	log.Printf("main: Config :\n%v\n", out)

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	logger, err := zapConfig.Build()
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync()

	policy, err := processor.ParseFailedRoundPolicy(cfg.Coordinator.FailedRoundPolicy)
	if err != nil {
		return err
	}

	procConfig := processor.Config{
		MinFitNodes:       cfg.Coordinator.MinFitNodes,
		MinAvailableNodes: cfg.Coordinator.MinAvailableNodes,
		FitFraction:       cfg.Coordinator.FitFraction,
		NumRounds:         cfg.Coordinator.NumRounds,
		RoundTimeout:      cfg.Coordinator.RoundTimeout,
		CollectAllInvited: cfg.Coordinator.CollectAllInvited,
		FailedRoundPolicy: policy,
		MaxRoundRetries:   cfg.Coordinator.MaxRoundRetries,
		Seed:              cfg.Coordinator.Seed,
		LocalEpochs:       cfg.Coordinator.LocalEpochs,
		BatchSize:         cfg.Coordinator.BatchSize,
		Evaluate:          cfg.Coordinator.Evaluate,
	}
	if err := procConfig.Validate(); err != nil {
		return errors.Wrap(err, "validating coordinator config")
	}

	if cfg.Simulation.Dimensions <= 0 {
		return errors.Errorf("simulation dimensions must be positive, got %d", cfg.Simulation.Dimensions)
	}
	optimumValues := make([]float64, cfg.Simulation.Dimensions)
	for i := range optimumValues {
		optimumValues[i] = cfg.Simulation.TargetValue
	}
	optimum := types.Parameters{types.NewTensor([]int{cfg.Simulation.Dimensions}, optimumValues)}
	initialState := types.GlobalState{Round: 0, Parameters: types.ZerosLike(optimum)}

	nodes, err := factory.NewFleet(factory.FleetConfig{
		HonestNodes:      cfg.Simulation.HonestNodes,
		AdversarialNodes: cfg.Simulation.AdversarialNodes,
		AdversarialMode:  node.Mode(cfg.Simulation.AdversarialMode),
		MinSamples:       cfg.Simulation.MinSamples,
		MaxSamples:       cfg.Simulation.MaxSamples,
		LearningRate:     cfg.Simulation.LearningRate,
		TargetSpread:     cfg.Simulation.TargetSpread,
		Seed:             cfg.Simulation.Seed,
	}, optimum)
	if err != nil {
		return errors.Wrap(err, "creating simulated fleet")
	}

	el := store.NewEventListener(logger)
	db, err := pebble.Open(cfg.Store.StorageFolder, &pebble.Options{EventListener: &el.PebbleListener})
	if err != nil {
		return errors.Wrap(err, "opening pebble")
	}
	defer db.Close()

	ps, err := store.NewPebbleStore(db, logger)
	if err != nil {
		return errors.Wrap(err, "creating pebble store")
	}

	csvSink, err := audit.NewCSVSink(cfg.Store.AuditCsvPath)
	if err != nil {
		return errors.Wrap(err, "creating csv audit sink")
	}
	defer csvSink.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	val := validator.New(audit.MultiSink{ps, csvSink}, ps, quarantine.NewClassifier(cfg.Coordinator.KnownBadFingerprints...), logger)

	p, err := processor.NewProcessor(procConfig, nodes, ps, val, initialState, logger, ps, m)
	if err != nil {
		return errors.Wrap(err, "creating processor")
	}

	rpcServer := rpc.NewServer(cfg.Server.GrpcHost, cfg.Server.HttpHost, ps, p, registry, el.HandleEventsEndpoint, logger)
	if err := rpcServer.Start(); err != nil {
		return errors.Wrap(err, "starting rpc server")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := rpcServer.Stop(ctx); err != nil {
			logger.Error("stopping rpc server", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinatorErrors := make(chan error, 1)
	go func() {
		coordinatorErrors <- p.Start(ctx)
	}()

	for {
		select {
		case <-shutdown:
			logger.Info("shutting down")
			cancel()
			if coordinatorErrors != nil {
				<-coordinatorErrors
			}
			return nil
		case err := <-coordinatorErrors:
			if errors.Is(err, aggregation.ErrShapeInvariantViolation) {
				return errors.Wrap(err, "global model corrupted")
			}
			if err != nil {
				return errors.Wrap(err, "coordinator error")
			}
			logger.Info("all rounds finished", zap.Uint64("lastRound", p.Status().LastCompletedRound))
			if !cfg.Server.KeepServing {
				return nil
			}
			coordinatorErrors = nil
		}
	}
}

package main

import (
	"context"
	"fmt"
	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/audit"
	"github.com/securefed/go-coordinator/rpc"
	"github.com/securefed/go-coordinator/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"log"
	"os"
	"time"
)

const prefix = "SECUREFED"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	var cfg struct {
		CoordinatorHost string        `conf:"default:127.0.0.1:8001"`
		ReadTimeout     time.Duration `conf:"default:10s"`
		OutputPath      string        `conf:"default:audit_export.csv"`
		FromRound       uint64        `conf:"default:1"`
		ToRound         uint64
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

	conn, err := grpc.NewClient(cfg.CoordinatorHost, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "creating coordinator connection")
	}
	defer conn.Close()

	client := rpc.NewCoordinatorServiceClient(conn)

	toRound := cfg.ToRound
	if toRound == 0 {
		toRound, err = lastProcessedRound(context.Background(), client, cfg.ReadTimeout)
		if err != nil {
			return errors.Wrap(err, "getting last processed round")
		}
	}

	sink, err := audit.NewCSVSink(cfg.OutputPath)
	if err != nil {
		return errors.Wrap(err, "creating csv sink")
	}
	defer sink.Close()

	exported, err := exportRounds(context.Background(), client, sink, cfg.FromRound, toRound, cfg.ReadTimeout, sLogger)
	if err != nil {
		return errors.Wrap(err, "exporting audit records")
	}

	sLogger.Infow("export finished", "records", exported, "fromRound", cfg.FromRound, "toRound", toRound, "output", cfg.OutputPath)

	return nil
}

func lastProcessedRound(ctx context.Context, client rpc.CoordinatorServiceClient, timeout time.Duration) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := client.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, errors.Wrap(err, "calling GetStatus")
	}

	var status struct {
		LastProcessedRound uint64 `json:"lastProcessedRound"`
	}
	if err := rpc.DecodeStruct(doc, &status); err != nil {
		return 0, errors.Wrap(err, "decoding status")
	}

	return status.LastProcessedRound, nil
}

// exportRounds copies the audit records of every round in [from, to] into sink, in
// round and sequence order.
func exportRounds(ctx context.Context, client rpc.CoordinatorServiceClient, sink audit.Sink, from, to uint64, timeout time.Duration, logger *zap.SugaredLogger) (int, error) {
	if to < from {
		return 0, errors.Errorf("invalid round range [%d, %d]", from, to)
	}

	var exported int
	for round := from; round <= to; round++ {
		records, err := fetchRound(ctx, client, round, timeout)
		if err != nil {
			return exported, errors.Wrapf(err, "fetching audit records for round %d", round)
		}

		for _, record := range records {
			if _, err := sink.AppendAuditRecord(ctx, record); err != nil {
				return exported, errors.Wrapf(err, "writing record %d", record.Sequence)
			}
			exported++
		}

		logger.Debugw("exported round", "round", round, "records", len(records))
	}

	return exported, nil
}

func fetchRound(ctx context.Context, client rpc.CoordinatorServiceClient, round uint64, timeout time.Duration) ([]types.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	list, err := client.GetAuditRecords(ctx, wrapperspb.UInt64(round))
	if err != nil {
		return nil, err
	}

	var records []types.AuditRecord
	if err := rpc.DecodeList(list, &records); err != nil {
		return nil, errors.Wrap(err, "decoding audit records")
	}

	return records, nil
}

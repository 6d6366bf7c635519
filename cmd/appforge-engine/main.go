package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"appforge/engine/internal/appdirs"
	"appforge/engine/internal/engine"
	"appforge/engine/internal/envutil"
	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/logging"
	"appforge/engine/internal/rpc"
)

func main() {
	var (
		debugFlag   bool
		stderrToo   bool
		showVersion bool
	)
	pflag.BoolVarP(&debugFlag, "debug", "d", false, "Write a debug log under the data directory.")
	pflag.BoolVar(&stderrToo, "log-stderr", false, "Mirror log records to stderr as well as the log file.")
	pflag.BoolVarP(&showVersion, "version", "v", false, "Print the engine version and exit.")
	pflag.Parse()

	if showVersion {
		fmt.Printf("appforge-engine %s (api %s)\n", engine.EngineVersion, engine.APIVersion)
		return
	}

	envResult := envutil.LoadDotenv()
	debug := debugFlag || envutil.Bool("APPFORGE_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug, stderrToo)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		log.Fatalf("engine init failed: %v", err)
	}
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)
	register("SettingsGet", eng.SettingsGet)
	register("SettingsUpdate", eng.SettingsUpdate)

	register("ProjectCreate", eng.ProjectCreate)
	register("ProjectRebuild", eng.ProjectRebuild)
	register("ProjectGetStatus", eng.ProjectGetStatus)

	register("FilesCreate", eng.FilesCreate)
	register("FilesView", eng.FilesView)
	register("FilesReplace", eng.FilesReplace)
	register("FilesInsert", eng.FilesInsert)
	register("FilesGetDiff", eng.FilesGetDiff)

	register("StreamSegment", eng.StreamSegment)
	register("StreamApplyEdits", eng.StreamApplyEdits)

	register("SnapshotCreate", eng.SnapshotCreate)
	register("SnapshotsList", eng.SnapshotsList)
	register("SnapshotRestore", eng.SnapshotRestore)

	serveErr := server.Serve(context.Background())
	eng.Close()
	if serveErr != nil {
		logger.Error("rpc.server_error", "error", serveErr.Error())
		log.Fatalf("rpc server error: %v", serveErr)
	}
}

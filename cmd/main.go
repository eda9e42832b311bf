package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	unitgate "github.com/ethereum-optimism/infra/op-unitgate"
	"github.com/ethereum-optimism/infra/op-unitgate/exitcodes"
	"github.com/ethereum-optimism/infra/op-unitgate/flags"
	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	"github.com/ethereum-optimism/infra/op-unitgate/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp(runner.NewProcessExecutor())

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp(executor runner.CommandExecutor) *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-unitgate"
	app.Usage = "Unit test gate for CI"
	app.Description = "op-unitgate runs a package's tests with retries, gates on full coverage and aggregates coverage reports"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = func(ctx *cli.Context) error {
		return run(ctx, executor)
	}
	app.ExitErrHandler = exitErrHandler
	return app
}

// exitErrHandler maps every failure to exit code 1
func exitErrHandler(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
	} else if err != nil {
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case unitgate.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case unitgate.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		return exitcodes.RuntimeErr
	}
}

func run(ctx *cli.Context, executor runner.CommandExecutor) error {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return unitgate.NewRuntimeError(fmt.Errorf("invalid metrics config: %w", err))
	}
	if metricsCfg.Enabled {
		svc := service.New(service.DefaultConfig(metricsCfg.ListenAddr, metricsCfg.ListenPort))
		svc.Start(ctx.Context)
		defer svc.Shutdown()
	}

	cfg, err := unitgate.NewConfig(ctx, log)
	if err != nil {
		return unitgate.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	orchestrator, err := unitgate.New(cfg, executor, unitgate.WithEcho(ctx.App.Writer, ctx.App.ErrWriter), unitgate.WithReport(ctx.App.Writer))
	if err != nil {
		return unitgate.NewRuntimeError(fmt.Errorf("failed to create orchestrator: %w", err))
	}

	result := orchestrator.Run(ctx.Context)
	if result.Err != nil {
		return result.Err
	}
	if result.ExitCode != exitcodes.Success {
		return cli.Exit("coverage gate failed", result.ExitCode)
	}
	return nil
}

package releaseflow

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

// Dial connects to the Temporal frontend with engine logging.
func Dial(hostPort, namespace string, logger zerolog.Logger) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewLogger(logger),
	})
}

// NewWorker registers the release workflow and its activity on taskQueue.
func NewWorker(c client.Client, taskQueue string, releaser Releaser) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     50,
		MaxConcurrentWorkflowTaskExecutionSize: 50,
	})
	w.RegisterWorkflow(EscrowReleaseWorkflow)
	w.RegisterActivity(NewActivities(releaser))
	return w
}

// Logger adapts zerolog to the SDK's key-value logger.
type Logger struct {
	zl zerolog.Logger
}

var _ log.Logger = (*Logger)(nil)

func NewLogger(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl.With().Str("component", "temporal").Logger()}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.log(l.zl.Debug(), msg, keyvals) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.log(l.zl.Info(), msg, keyvals) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.log(l.zl.Warn(), msg, keyvals) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.log(l.zl.Error(), msg, keyvals) }

func (l *Logger) log(ev *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		ev = ev.Interface(fmt.Sprint(keyvals[i]), keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		ev = ev.Interface("extra", keyvals[len(keyvals)-1])
	}
	ev.Msg(msg)
}

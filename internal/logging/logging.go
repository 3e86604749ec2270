// Package logging provides the export-repair-queue audit trail: a narrow,
// append-only JSON log distinct from the primary zerolog pipeline logger in
// internal/observability. Export failures never fail the ingest pipeline
// itself, so they are logged here instead, giving a later repair pass
// something to replay without grepping the general-purpose pipeline log.
package logging

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "runtime"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
)

// RepairLog is the export-repair-queue audit logger. Every ExportError
// recorded by internal/store is written here with enough context
// (doc_id, vault path, cause) to retry the export later.
var RepairLog = logrus.New()

type contextHook struct{}

func (contextHook) Levels() []logrus.Level { return logrus.AllLevels }

func packageFromFunc(fn string) string {
    if i := strings.LastIndex(fn, "/"); i >= 0 {
        fn = fn[i+1:]
    }
    if i := strings.Index(fn, "."); i >= 0 {
        return fn[:i]
    }
    return fn
}

func (contextHook) Fire(e *logrus.Entry) error {
    if e.Caller == nil {
        return nil
    }
    pkg := packageFromFunc(e.Caller.Function)
    file := fmt.Sprintf("%s:%d", filepath.Base(e.Caller.File), e.Caller.Line)
    e.Data["package"] = pkg
    e.Data["file"] = file
    return nil
}

func init() {
    RepairLog.SetReportCaller(true)
    RepairLog.SetFormatter(&logrus.JSONFormatter{
        TimestampFormat: time.RFC3339Nano,
        CallerPrettyfier: func(f *runtime.Frame) (string, string) {
            function := filepath.Base(f.Function)
            file := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
            return function, file
        },
    })
    RepairLog.AddHook(contextHook{})

    logPath := "export-repair.log"
    logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
    if err != nil {
        RepairLog.SetOutput(os.Stdout)
    } else {
        mw := io.MultiWriter(os.Stdout, logFile)
        RepairLog.SetOutput(mw)
    }

    levelStr := os.Getenv("EXPORT_REPAIR_LOG_LEVEL")
    if levelStr == "" {
        levelStr = "info"
    }
    if lvl, err := logrus.ParseLevel(levelStr); err == nil {
        RepairLog.SetLevel(lvl)
    } else {
        RepairLog.SetLevel(logrus.InfoLevel)
    }
}

// QueueRepair records a failed export so it can be retried later. The vector
// write for docID has already committed by the time this is called; only the
// markdown/stub write side failed.
func QueueRepair(docID, vaultPath string, cause error) {
    RepairLog.WithFields(logrus.Fields{
        "doc_id":     docID,
        "vault_path": vaultPath,
        "cause":      cause.Error(),
    }).Warn("export failed, queued for repair")
}


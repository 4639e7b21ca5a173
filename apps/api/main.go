package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	dig_container "github.com/qlass/backend/apps/api/di/dig"
	echoapi "github.com/qlass/backend/apps/api/echo"
	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
	appfs "github.com/qlass/backend/fs"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		storeLoggerParam dig_container.StoreLoggerParam,
		store core.KVStore,
		validate *validator.Validate,
		translator ut.Translator,
		sess *admission.Session,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		admission.InitValidators(validate, translator)

		core.ParseEmailTemplates(appfs.FS, conf.Debug, apiLogger)

		storeLogger := storeLoggerParam.Logger
		defer func() {
			if err := store.Close(); err != nil {
				storeLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// resume the previous session; a broken snapshot must not prevent the API from starting.
		// While the store cannot be read, the session holds its saves.
		if err := loadSession(sess, loadAttempts, loadRetryDelay); err != nil {
			apiLogger.Error(fmt.Sprintf("loading admissions: %v", err), err)
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("storage").Set(conf.Storage.Driver)
		expvar.Publish("applications", expvar.Func(func() interface{} { return len(sess.Applications()) }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

const (
	loadAttempts   = 3
	loadRetryDelay = time.Second
)

// loadSession retries sess.Load while the store fails. A malformed snapshot is not retried.
func loadSession(sess *admission.Session, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		if err = sess.Load(context.Background()); err == nil || errors.Is(err, admission.ErrMalformedSnapshot) {
			return err
		}
	}
	return err
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

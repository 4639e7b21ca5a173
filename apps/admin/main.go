package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
	logsvc "github.com/qlass/backend/services/logger"
	"github.com/qlass/backend/storage/database"
	"github.com/qlass/backend/storage/kvstore"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	rbLogger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rbLogger.Enable(false)
	logger = rbLogger
	ctx := context.Background()

	cli := commandLine{out: os.Stdout}
	var closer io.Closer

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		db, err := openDB(ctx, conf)
		errAndDie(err)
		cli.db, closer = db, db
	} else {
		store, err := kvstore.Open(ctx, conf, logger)
		errAndDie(err)
		closer = store

		validate := validator.New()
		translator := core.NewTranslator()
		core.InitValidators(validate, translator)
		admission.InitValidators(validate, translator)

		cli.sess = admission.NewSession(
			admission.Deps{Store: store, Logger: logger, Validate: validate, Translator: translator},
			admission.Options{StorageKey: conf.Storage.Key, TimestampLayout: conf.Admission.TimestampLayout},
		)
		errAndDie(cli.sess.Load(ctx))
	}

	code := 0
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err))
		}
		code = 1
	}
	if err := closer.Close(); err != nil {
		logger.Error(fmt.Sprintf("closing store: %v", err), err)
	}
	os.Exit(code)
}

func openDB(ctx context.Context, conf *core.Config) (*sql.DB, error) {
	if conf.Storage.Driver != core.StoragePostgres {
		return nil, errNoDatabase
	}
	if err := database.CreateIfNotExist(ctx, conf.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(conf.Database)
	if err != nil {
		return nil, err
	}
	return db, database.Ping(ctx, db)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

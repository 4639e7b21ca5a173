package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/qlass/backend/apps/api/echo"
	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
	emailsvc "github.com/qlass/backend/services/email"
	logsvc "github.com/qlass/backend/services/logger"
	notifysvc "github.com/qlass/backend/services/notify"
	"github.com/qlass/backend/storage/kvstore"
)

type StoreLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storeLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newStoreLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newKVStore(conf *core.Config, loggerParam StoreLoggerParam) core.KVStore {
	store, err := kvstore.Open(context.Background(), conf, loggerParam.Logger)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up %s store: %v", conf.Storage.Driver, err), err)
	}
	return store
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNotifier(conf *core.Config, mailSvc core.EmailService, logger core.Logger) admission.Notifier {
	notifiers := admission.Notifiers{notifysvc.NewLogNotifier(logger)}
	if conf.Admission.NotifyApplicants {
		notifiers = append(notifiers, notifysvc.NewMailNotifier(mailSvc))
	}
	return notifiers
}

func newSession(
	conf *core.Config,
	store core.KVStore,
	logger core.Logger,
	notifier admission.Notifier,
	validate *validator.Validate,
	translator ut.Translator,
) *admission.Session {
	return admission.NewSession(
		admission.Deps{
			Store:      store,
			Logger:     logger,
			Notifier:   notifier,
			Validate:   validate,
			Translator: translator,
		},
		admission.Options{
			StorageKey:      conf.Storage.Key,
			TimestampLayout: conf.Admission.TimestampLayout,
		},
	)
}

func newServerDeps(sess *admission.Session, logger core.Logger) *echoapi.Deps {
	return &echoapi.Deps{Session: sess, Logger: logger}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(newKVStore))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newNotifier))
	must(c.Provide(newSession))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

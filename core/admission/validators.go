package admission

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/qlass/backend/core"
)

var (
	stageTag  = "stage"
	stageText = "unknown stage; must be one of verification, approval or enrollment"

	stageStatusTag  = "stagestatus"
	stageStatusText = "invalid status for this stage"
)

// InitValidators registers the admission validators. core.InitValidators must be called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(stageTag, stageValidation)
	core.RegisterCustomTranslation(validate, translator, stageTag, stageText)

	validate.RegisterStructValidation(transitionStructValidation, StageTransition{})
	core.RegisterCustomTranslation(validate, translator, stageStatusTag, stageStatusText)
}

// Custom Validators

func stageValidation(fl validator.FieldLevel) bool {
	return Stage(fl.Field().String()).Valid()
}

// transitionStructValidation checks that the status belongs to the requested stage's enum.
func transitionStructValidation(sl validator.StructLevel) {
	tr, ok := sl.Current().Interface().(StageTransition)
	if !ok || !tr.Stage.Valid() || tr.Status == "" {
		return
	}
	if !tr.Stage.Allows(tr.Status) {
		sl.ReportError(tr.Status, "status", "Status", stageStatusTag, "")
	}
}

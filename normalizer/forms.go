package normalizer

// Canonical pharmaceutical form families.
const (
	FormTablet     = "TABLETA"
	FormCapsule    = "CAPSULA"
	FormSyrup      = "JARABE"
	FormSolution   = "SOLUCION"
	FormSuspension = "SUSPENSION"
	FormInjectable = "INYECTABLE"
	FormCream      = "CREMA"
	FormGel        = "GEL"
	FormOintment   = "POMADA"
	FormDrops      = "GOTAS"
)

// formWords maps every recognised form word to its family.
var formWords = map[string]string{
	"TABLETA": FormTablet, "TABLETAS": FormTablet, "TAB": FormTablet, "TABS": FormTablet,
	"COMPRIMIDO": FormTablet, "COMPRIMIDOS": FormTablet, "COMP": FormTablet,
	"CAPSULA": FormCapsule, "CAPSULAS": FormCapsule, "CAP": FormCapsule, "CAPS": FormCapsule,
	"JARABE": FormSyrup, "JAR": FormSyrup,
	"SOLUCION": FormSolution, "SOL": FormSolution,
	"SUSPENSION": FormSuspension, "SUSP": FormSuspension,
	"INYECTABLE": FormInjectable, "INY": FormInjectable,
	"AMPOLLA": FormInjectable, "AMPOLLAS": FormInjectable, "AMP": FormInjectable,
	"CREMA":  FormCream,
	"GEL":    FormGel,
	"POMADA": FormOintment,
	"GOTAS":  FormDrops,
}

// modifierWords are stripped like form words but never decide the family.
var modifierWords = map[string]struct{}{
	"RECUBIERTA": {}, "RECUBIERTAS": {}, "LIBERACION": {}, "PROLONGADA": {},
	"ORAL": {}, "TOPICO": {}, "TOPICA": {},
}

// CanonicalForm maps a free-text pharmaceutical form, such as a registry
// "TABLETA RECUBIERTA" or "SOLUCION INYECTABLE", to its family. The
// injectable family wins over any other word present. Unknown forms
// return "".
func CanonicalForm(form string) string {
	family := ""
	for _, tok := range tokenize(fold(form, true)) {
		f, ok := formWords[tok]
		if !ok {
			continue
		}
		if f == FormInjectable {
			return f
		}
		if family == "" {
			family = f
		}
	}
	return family
}

// IsFormWord reports whether tok (already uppercased) is a form or modifier word.
func IsFormWord(tok string) bool {
	if _, ok := formWords[tok]; ok {
		return true
	}
	_, ok := modifierWords[tok]
	return ok
}

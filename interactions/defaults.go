package interactions

import "github.com/giygas/misalud-api/entities"

// DefaultVersion tags the built-in table.
const DefaultVersion = "builtin-2025.1"

var defaultEntries = []Entry{
	// Bleeding risk
	{[2]string{"aspirina", "warfarina"}, entities.SeverityHigh, "Aumenta significativamente el riesgo de sangrado. Consulte a su médico inmediatamente."},
	{[2]string{"ibuprofeno", "warfarina"}, entities.SeverityHigh, "Aumenta el riesgo de sangrado gastrointestinal. Evite esta combinación."},
	{[2]string{"aspirina", "clopidogrel"}, entities.SeverityHigh, "Alto riesgo de sangrado. Solo use bajo supervisión médica estricta."},

	// Metabolic
	{[2]string{"alcohol", "metformina"}, entities.SeverityHigh, "Riesgo de acidosis láctica, una condición grave. Evite el alcohol."},
	{[2]string{"metformina", "contraste yodado"}, entities.SeverityHigh, "Suspenda metformina antes de estudios con contraste. Consulte a su médico."},

	// Cardiac
	{[2]string{"digoxina", "amiodarona"}, entities.SeverityHigh, "Puede causar toxicidad por digoxina. Requiere ajuste de dosis."},
	{[2]string{"atenolol", "verapamilo"}, entities.SeverityHigh, "Riesgo de bradicardia severa y bloqueo cardíaco. Evite esta combinación."},

	// Potassium and renal
	{[2]string{"enalapril", "potasio"}, entities.SeverityMedium, "Puede aumentar el potasio en sangre (hiperpotasemia). Requiere monitoreo."},
	{[2]string{"losartan", "potasio"}, entities.SeverityMedium, "Puede aumentar el potasio en sangre. Requiere monitoreo periódico."},
	{[2]string{"enalapril", "espironolactona"}, entities.SeverityMedium, "Riesgo de hiperpotasemia. Monitoree niveles de potasio regularmente."},
	{[2]string{"losartan", "espironolactona"}, entities.SeverityMedium, "Riesgo de hiperpotasemia. Requiere control de laboratorio."},

	// Blood sugar
	{[2]string{"glibenclamida", "alcohol"}, entities.SeverityMedium, "El alcohol puede causar hipoglucemia severa. Limite el consumo."},
	{[2]string{"insulina", "alcohol"}, entities.SeverityMedium, "El alcohol puede enmascarar síntomas de hipoglucemia. Precaución."},

	// Central nervous system
	{[2]string{"alprazolam", "alcohol"}, entities.SeverityHigh, "Combinación peligrosa. Puede causar sedación excesiva y depresión respiratoria."},
	{[2]string{"clonazepam", "alcohol"}, entities.SeverityHigh, "Riesgo de sedación profunda y problemas respiratorios. No combine."},
	{[2]string{"tramadol", "alcohol"}, entities.SeverityHigh, "Aumenta el riesgo de depresión respiratoria. Evite el alcohol."},

	// Antibiotics
	{[2]string{"metronidazol", "alcohol"}, entities.SeverityMedium, "Causa reacción tipo disulfiram (náuseas, vómitos). No consuma alcohol."},
	{[2]string{"ciprofloxacino", "antiácidos"}, entities.SeverityMedium, "Los antiácidos reducen la absorción. Tome con 2 horas de diferencia."},

	// Absorption
	{[2]string{"levotiroxina", "calcio"}, entities.SeverityLow, "El calcio reduce la absorción. Tome con 4 horas de diferencia."},
	{[2]string{"levotiroxina", "hierro"}, entities.SeverityLow, "El hierro reduce la absorción. Tome con 4 horas de diferencia."},
	{[2]string{"omeprazol", "clopidogrel"}, entities.SeverityMedium, "Omeprazol puede reducir la efectividad del clopidogrel. Consulte alternativas."},
}

// Common brand names on the Colombian market mapped to their generic.
var defaultAliases = map[string]string{
	"glucophage":     "metformina",
	"glafornil":      "metformina",
	"cardioaspirina": "aspirina",
	"coumadin":       "warfarina",
	"sintrom":        "acenocumarol",
	"plavix":         "clopidogrel",
	"lipitor":        "atorvastatina",
	"crestor":        "rosuvastatina",
	"viagra":         "sildenafil",
	"cialis":         "tadalafil",
	"rivotril":       "clonazepam",
	"xanax":          "alprazolam",
	"eutirox":        "levotiroxina",
	"synthroid":      "levotiroxina",
}

// DefaultTable builds the built-in table. It panics only if the built-in
// data is inconsistent, which the package tests rule out.
func DefaultTable() *Table {
	t, err := NewTable(DefaultVersion, defaultEntries, defaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

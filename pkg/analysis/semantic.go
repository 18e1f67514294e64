package analysis

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/census-engine/pkg/models"
)

// semanticRule is the evidence used to score one candidate semantic type.
type semanticRule struct {
	Type      models.SemanticType
	Keywords  []string // folded
	Pattern   *regexp.Regexp
	Validator models.ValidatorKind
	Upper     bool // match the pattern against the upper-cased value
}

// semanticRules follows models.SemanticTypes order, which is the tie-break order.
var semanticRules = []semanticRule{
	{
		Type:      models.SemanticPersonName,
		Keywords:  []string{"nombre", "name", "empleado", "trabajador", "colaborador", "employee", "apellido", "full name"},
		Pattern:   regexp.MustCompile(`^[\p{L}'.,-]+(\s+[\p{L}'.,-]+)+$`),
		Validator: models.ValidatorPersonName,
	},
	{
		Type:      models.SemanticNationalID,
		Keywords:  []string{"rfc", "curp", "nss", "imss", "seguro social", "tax id", "ssn"},
		Pattern:   regexp.MustCompile(`^[A-ZÑ&0-9-]{11,18}$`),
		Validator: models.ValidatorNationalID,
		Upper:     true,
	},
	{
		Type:      models.SemanticSalary,
		Keywords:  []string{"sueldo", "salario", "salary", "wage", "percepcion", "finiquito", "indemnizacion", "monto", "importe", "pay"},
		Pattern:   regexp.MustCompile(`^\$?\s*-?(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`),
		Validator: models.ValidatorSalary,
	},
	{
		Type:      models.SemanticDate,
		Keywords:  []string{"fecha", "date", "nacimiento", "ingreso", "alta", "baja", "dob", "antiguedad", "birth", "hire"},
		Pattern:   regexp.MustCompile(`^(\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}|\d{1,2}[- ][A-Za-z]{3}[- ]\d{2,4})`),
		Validator: models.ValidatorDate,
	},
	{
		Type:      models.SemanticCategorical,
		Keywords:  []string{"sexo", "genero", "gender", "sex", "estado", "status", "puesto", "departamento", "area", "causa", "motivo", "tipo"},
		Pattern:   regexp.MustCompile(`^\p{L}{1,12}$`),
		Validator: models.ValidatorGender,
	},
	{
		Type:      models.SemanticEmployeeCode,
		Keywords:  []string{"codigo", "clave", "numero", "id", "nomina", "ficha", "code", "employee id", "no empleado", "num empleado"},
		Pattern:   employeeCodePattern,
		Validator: models.ValidatorEmployeeCode,
	},
}

// purposeKeywords weights header words toward a table purpose.
var purposeKeywords = map[models.TablePurpose]map[string]float64{
	models.PurposeActivePersonnel: {
		"ingreso": 2, "alta": 2, "hire": 2, "activo": 2, "active": 2, "plantilla": 2,
		"sueldo": 1, "salario": 1, "salary": 1, "antiguedad": 1,
	},
	models.PurposeTerminations: {
		"baja": 3, "termination": 3, "separacion": 2, "finiquito": 2, "indemnizacion": 2,
		"severance": 2, "causa": 2, "motivo": 2, "cause": 2, "salida": 2, "liquidacion": 2,
	},
}

// headerKeywords is every word that marks a header cell.
var headerKeywords = func() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, r := range semanticRules {
		for _, k := range r.Keywords {
			add(k)
		}
	}
	for _, p := range models.RecordPurposes {
		for k := range purposeKeywords[p] {
			add(k)
		}
	}
	return out
}()

// matchesAny reports whether either header form contains one of the keywords.
func matchesAny(folded, singular string, keywords []string) bool {
	for _, k := range keywords {
		if ContainsWord(folded, k) || ContainsWord(singular, k) {
			return true
		}
	}
	return false
}

// IsHeaderKeyword reports whether a header cell contains a known header word.
func IsHeaderKeyword(cell string) bool {
	folded, singular := HeaderForms(cell)
	return matchesAny(folded, singular, headerKeywords)
}

func (r semanticRule) matches(value string) bool {
	if r.Upper {
		value = strings.ToUpper(value)
	}
	return r.Pattern.MatchString(value)
}

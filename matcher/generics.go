package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/normalizer"
)

// GenericFinder lists registry records sharing the active ingredient of a
// matched record.
type GenericFinder struct {
	registry interfaces.Registry
	limit    int
}

// NewGenericFinder creates a finder. limit bounds the registry query.
func NewGenericFinder(registry interfaces.Registry, limit int) *GenericFinder {
	if limit <= 0 {
		limit = DefaultOptions().SearchLimit
	}
	return &GenericFinder{registry: registry, limit: limit}
}

// FindGenerics returns same-ingredient records other than matched,
// deduplicated by brand and concentration. When formFilter is not empty only
// records of the same form family are kept. An empty slice is a valid answer.
func (g *GenericFinder) FindGenerics(ctx context.Context, matched entities.RegistryRecord, formFilter string) ([]entities.RegistryRecord, error) {
	out := []entities.RegistryRecord{}
	ingredient := normalizer.Normalize(matched.ActiveIngredient).Text
	if ingredient == "" {
		return out, nil
	}

	records, err := g.registry.SearchByIngredient(ctx, ingredient, g.limit)
	if err != nil {
		return nil, fmt.Errorf("search generics %q: %w", ingredient, err)
	}

	wantForm := ""
	if formFilter != "" {
		wantForm = formKey(formFilter)
	}

	seen := map[string]struct{}{genericKey(matched): {}}
	for _, r := range records {
		if r.RegistryID == matched.RegistryID {
			continue
		}
		if normalizer.Normalize(r.ActiveIngredient).Text != ingredient {
			continue
		}
		if wantForm != "" && formKey(r.Form) != wantForm {
			continue
		}
		key := genericKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := normalizer.Normalize(out[i].BrandName).Text, normalizer.Normalize(out[j].BrandName).Text
		if bi != bj {
			return bi < bj
		}
		ci, cj := concentrationKey(out[i].Concentration), concentrationKey(out[j].Concentration)
		if ci != cj {
			return ci < cj
		}
		return lessID(out[i].RegistryID, out[j].RegistryID)
	})
	return out, nil
}

// genericKey identifies a product by normalized brand and concentration.
func genericKey(r entities.RegistryRecord) string {
	return normalizer.Normalize(r.BrandName).Text + "|" + concentrationKey(r.Concentration)
}

func concentrationKey(c string) string {
	if d := normalizer.ParseDosage(c); d != nil {
		return d.Canonical().String()
	}
	return normalizer.Normalize(c).String()
}

// formKey falls back to the folded text when the form has no known family.
func formKey(form string) string {
	if f := normalizer.CanonicalForm(form); f != "" {
		return f
	}
	return normalizer.Fold(form)
}

package jobdef

import (
	"context"
	"fmt"
	"sort"

	"github.com/caesium-cloud/batch/internal/secret"
	schema "github.com/caesium-cloud/batch/pkg/jobdef"
)

// SecretReferences returns the unique secret:// values used by the
// definition's job environments, sorted.
func SecretReferences(def *schema.Definition) []string {
	seen := make(map[string]struct{})
	for _, jd := range def.Jobs {
		for _, value := range jd.Env {
			if secret.IsReference(value) {
				seen[value] = struct{}{}
			}
		}
	}

	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// CheckSecrets resolves every secret reference of the definitions and
// describes each one that cannot be resolved. Each reference is resolved
// once.
func CheckSecrets(ctx context.Context, resolver *secret.Resolver, defs []*schema.Definition) []string {
	resolved := make(map[string]error)
	problems := make([]string, 0)

	for _, def := range defs {
		for _, ref := range SecretReferences(def) {
			err, done := resolved[ref]
			if !done {
				_, err = resolver.Resolve(ctx, ref)
				resolved[ref] = err
			}
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: secret %s: %v", def.Metadata.Name, ref, err))
			}
		}
	}

	return problems
}

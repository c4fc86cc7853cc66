// Package detect determines which programming model a project uses.
//
// The legacy model (v1) declares each function in its own function.json;
// the decorator model (v2) registers functions with "@app." decorators in
// source. Evidence of the legacy model wins when both are present.
package detect

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kylerisse/funcdoctor/pkg/project"
)

// Model is a function-app programming model.
type Model string

const (
	ModelV1 Model = "v1"
	ModelV2 Model = "v2"
)

// DecoratorMarker identifies decorator-model source.
const DecoratorMarker = "@app."

// Detection is the evidence gathered about a project's model.
type Detection struct {
	Model Model

	// LegacyFiles are the function.json files found, relative to the root.
	LegacyFiles []string

	// Nested is true when any legacy file is below the project root.
	Nested bool

	// DecoratorFile is the first source file containing DecoratorMarker.
	DecoratorFile string
}

// Legacy reports whether the project uses the v1 model.
func (d Detection) Legacy() bool {
	return d.Model == ModelV1
}

// IncompatibleProjectError is returned when a project uses the legacy model
// with per-function directories and legacy projects were not allowed.
type IncompatibleProjectError struct {
	Path        string
	LegacyFiles []string
}

func (e *IncompatibleProjectError) Error() string {
	return fmt.Sprintf("detect: %s uses the v1 programming model (%s); rerun with legacy projects allowed to diagnose it",
		e.Path, strings.Join(e.LegacyFiles, ", "))
}

// Detect inspects the project. Files that cannot be read are skipped, and
// a project with no evidence either way is treated as v2.
func Detect(ctx context.Context, p *project.Project, logger *logrus.Logger) (Detection, error) {
	var d Detection

	legacy, err := p.FindFiles(ctx, project.FunctionConfig)
	if err != nil {
		return d, err
	}
	if len(legacy) > 0 {
		d.Model = ModelV1
		d.LegacyFiles = legacy
		for _, rel := range legacy {
			if path.Dir(rel) != "." {
				d.Nested = true
				break
			}
		}
		logger.WithFields(logrus.Fields{
			"files":  len(legacy),
			"nested": d.Nested,
		}).Debug("legacy function.json found")
		return d, nil
	}

	sources, err := p.SourceFiles(ctx)
	if err != nil {
		return d, err
	}
	for _, rel := range sources {
		text, err := p.ReadText(rel)
		if err != nil {
			logger.WithFields(logrus.Fields{"file": rel}).Debugf("skipping unreadable source: %v", err)
			continue
		}
		if strings.Contains(text, DecoratorMarker) {
			d.DecoratorFile = rel
			break
		}
	}
	d.Model = ModelV2
	if d.DecoratorFile == "" {
		logger.Debug("no programming model evidence found, assuming v2")
	}
	return d, nil
}

// Gate returns an *IncompatibleProjectError when d shows nested legacy
// functions and allowLegacy is false. A root-level function.json alone is
// let through.
func Gate(d Detection, root string, allowLegacy bool) error {
	if allowLegacy || !d.Legacy() || !d.Nested {
		return nil
	}
	return &IncompatibleProjectError{Path: root, LegacyFiles: d.LegacyFiles}
}

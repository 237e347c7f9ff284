// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agentdef

import (
	"fmt"

	"github.com/jllopis/declagent/pkg/expr"
)

// Finding is a non-fatal problem found by Lint.
type Finding struct {
	Where   string `json:"where"`
	Message string `json:"message"`
}

func (f Finding) String() string { return f.Where + ": " + f.Message }

// Lint reports tokens that reference names which are not yet defined at the
// point of use. Such tokens resolve to nil at run time, so they are
// warnings rather than errors.
func (d *Definition) Lint() []Finding {
	defined := map[string]bool{ReservedInput: true, ReservedProps: true}
	later := make(map[string]bool, len(d.Logic.Workflow))
	for _, s := range d.Logic.Workflow {
		later[s.Name] = true
	}

	var out []Finding
	check := func(where string, value any) {
		for _, name := range expr.References(value) {
			if defined[name] {
				continue
			}
			msg := fmt.Sprintf("$%s is not defined", name)
			if later[name] {
				msg = fmt.Sprintf("$%s refers to a step that runs later", name)
			}
			out = append(out, Finding{Where: where, Message: msg})
		}
	}

	for i, v := range d.Logic.Variables {
		check(fmt.Sprintf("logic.variables[%d] (%s)", i, v.Name), v.Value)
		defined[v.Name] = true
	}
	for i, s := range d.Logic.Workflow {
		check(fmt.Sprintf("logic.workflow[%d] (%s)", i, s.Name), s.Action)
		defined[s.Name] = true
		delete(later, s.Name)
	}
	check("logic.output", d.Logic.Output)
	return out
}

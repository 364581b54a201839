/*
Copyright The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package plan

// Container is anything a Strategy can select candidates from: a Phase's
// Steps, or a Plan's Phases. Both satisfy this with the same shape, so one
// set of Strategy implementations drives both levels of nesting.
type Container interface {
	// Len returns the number of children.
	Len() int
	// ChildStatus returns the status of the i'th child.
	ChildStatus(i int) Status
	// ChildName returns a display name for the i'th child, for logging.
	ChildName(i int) string
}

// stepsContainer adapts a []*Step to Container.
type stepsContainer []*Step

func (c stepsContainer) Len() int                 { return len(c) }
func (c stepsContainer) ChildStatus(i int) Status { return c[i].Status() }
func (c stepsContainer) ChildName(i int) string   { return c[i].Name() }

// phasesContainer adapts a []*Phase to Container.
type phasesContainer []*Phase

func (c phasesContainer) Len() int                 { return len(c) }
func (c phasesContainer) ChildStatus(i int) Status { return c[i].Status() }
func (c phasesContainer) ChildName(i int) string   { return c[i].Name() }

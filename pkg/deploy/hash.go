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

package deploy

import (
	hashstructure "github.com/mitchellh/hashstructure/v2"
	corev1 "k8s.io/api/core/v1"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// podShapeHash returns a stable hash of everything about a pod that flows
// into its OfferRequirement: tasks, resources, volumes, placement. Two
// generations whose hashes match for a pod would launch it identically, so
// UpdateSpec reports that pod as unchanged.
func podShapeHash(p specmodel.PodSpec) (uint64, error) {
	type volumeShape struct {
		Name      string
		MountPath string
		Size      map[string]string
	}
	type taskShape struct {
		Name          specmodel.TaskName
		Command       string
		Resources     map[string]string
		Volumes       []volumeShape
		Placement     *specmodel.PlacementRule
		ResourceSetID string
	}
	type resourceSetShape struct {
		ID        string
		Resources map[string]string
		Volumes   []volumeShape
	}
	type shape struct {
		Type      specmodel.PodType
		Index     int
		User      string
		Tasks     []taskShape
		Resources []resourceSetShape
		Placement *specmodel.PlacementRule
	}

	// resource.Quantity carries unexported caching state that defeats
	// structural hashing; its canonical string form does not.
	quantities := func(rl corev1.ResourceList) map[string]string {
		out := make(map[string]string, len(rl))
		for name, qty := range rl {
			out[string(name)] = qty.String()
		}
		return out
	}
	volumes := func(vols []specmodel.VolumeRequirement) []volumeShape {
		out := make([]volumeShape, 0, len(vols))
		for _, v := range vols {
			out = append(out, volumeShape{Name: v.Name, MountPath: v.MountPath, Size: quantities(v.Size)})
		}
		return out
	}

	s := shape{
		Type:      p.Type,
		Index:     p.Index,
		User:      p.User,
		Placement: p.Placement,
	}
	for _, t := range p.Tasks {
		s.Tasks = append(s.Tasks, taskShape{
			Name:          t.Name,
			Command:       t.Command,
			Resources:     quantities(t.Resources),
			Volumes:       volumes(t.Volumes),
			Placement:     t.Placement,
			ResourceSetID: t.ResourceSetID,
		})
	}
	for _, rs := range p.Resources {
		s.Resources = append(s.Resources, resourceSetShape{
			ID:        rs.ID,
			Resources: quantities(rs.Resources),
			Volumes:   volumes(rs.Volumes),
		})
	}
	return hashstructure.Hash(s, hashstructure.FormatV2, nil)
}

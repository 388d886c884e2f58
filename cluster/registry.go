// Copyright 2024 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import "fmt"

// Constructor builds a fresh Profile instance for one run. Profiles are
// stateful (declared options carry per-run coerced values) so the
// registry hands out a new instance per call rather than sharing one.
type Constructor func() Profile

// registrations is the explicit compile-time table populating the
// registry, in place of the source's dynamic class enumeration over a
// plug-in directory: each profile calls Register from its own init(),
// recording (short-name, constructor). Ordering among entries is not
// significant except for the layering rule, which is resolved explicitly
// via Parent() rather than by table order.
var registrations = map[string]Constructor{}

// Register records a profile constructor under its short name. Panics if
// the name is already registered, mirroring the teacher's test-registry
// panic-on-duplicate discipline.
func Register(shortName string, ctor Constructor) {
	if _, ok := registrations[shortName]; ok {
		panic(fmt.Sprintf("cluster profile %q already registered", shortName))
	}
	registrations[shortName] = ctor
}

// reservedNullProfiles excludes the generic/abstract base from
// auto-detection: "none" (aliased "jbon") enumerates no nodes and never
// auto-matches, per the one-reserved-null-profile rule.
const (
	NoneProfileName = "none"
	JBONProfileAlias = "jbon"
)

// ByName constructs the named profile, resolving the "jbon" alias to
// "none". Returns an error if the name is not registered.
func ByName(shortName string) (Profile, error) {
	if shortName == JBONProfileAlias {
		shortName = NoneProfileName
	}
	ctor, ok := registrations[shortName]
	if !ok {
		return nil, fmt.Errorf("unknown cluster type %q", shortName)
	}
	return ctor(), nil
}

// Names returns every registered profile's short name, for -l/--list-options.
func Names() []string {
	names := make([]string, 0, len(registrations))
	for n := range registrations {
		names = append(names, n)
	}
	return names
}

// All constructs one fresh instance of every registered profile, for
// auto-detection.
func All() []Profile {
	profiles := make([]Profile, 0, len(registrations))
	for _, ctor := range registrations {
		profiles = append(profiles, ctor())
	}
	return profiles
}

// Detect runs auto-detection against primary: it evaluates AppliesHere
// across every non-null profile, then applies the layering rule — if
// base profile P matches and some other registered profile whose Parent()
// is P's short name also matches, the derived profile supersedes P. If
// multiple unrelated base profiles match, the first match in Names()
// iteration order wins; callers that need a stable choice across
// ambiguous ties should set --cluster-type explicitly.
func Detect(primary PrimaryNode) (Profile, error) {
	candidates := All()

	matched := map[string]Profile{}
	for _, p := range candidates {
		if p.ShortName() == NoneProfileName {
			continue
		}
		if p.AppliesHere(primary) {
			matched[p.ShortName()] = p
		}
	}

	if len(matched) == 0 {
		none, err := ByName(NoneProfileName)
		if err != nil {
			return nil, err
		}
		return none, nil
	}

	// Layering: drop any matched profile that is itself the parent of
	// another matched profile.
	isSuperseded := map[string]bool{}
	for _, p := range matched {
		if p.Parent() != "" {
			if _, parentMatched := matched[p.Parent()]; parentMatched {
				isSuperseded[p.Parent()] = true
			}
		}
	}

	for _, name := range sortedKeys(matched) {
		if !isSuperseded[name] {
			return matched[name], nil
		}
	}
	// Unreachable: every candidate superseded implies a cycle, which
	// Register's table construction does not allow.
	return nil, fmt.Errorf("cluster profile layering produced no winner")
}

func sortedKeys(m map[string]Profile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort: the candidate set is always small (a
	// handful of registered profiles), so this avoids pulling in sort
	// for a few-element slice while still giving deterministic,
	// stable-within-a-run ordering.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

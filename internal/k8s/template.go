package k8s

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"redress/internal/patch"
)

// ecrAccount/ecrRegion anchor the version domain of the default template.
// Candidate images are built under this registry so the registry policy
// is satisfiable without a proposer.
const (
	ecrAccount = "123456789012"
	ecrRegion  = "us-east-1"
)

// DefaultTemplate builds the fallback repair template and hole space from
// the artifact itself: container name and present label values seed the
// domains, widened with the org defaults so the search has room to move.
// Used when both the bank and the proposer come up empty.
func DefaultTemplate(a *Artifact) (*patch.Template, *patch.HoleSpace, error) {
	var container, env, team, tier string
	a.eachDeployment(func(root *yaml.Node) bool {
		if cs := containers(root); len(cs) > 0 && container == "" {
			container = scalarString(mapGet(cs[0], "name"))
		}
		if env == "" {
			env = podTemplateLabel(root, "env")
		}
		if team == "" {
			team = podTemplateLabel(root, "team")
		}
		if tier == "" {
			tier = podTemplateLabel(root, "tier")
		}
		return false
	})
	if container == "" {
		return nil, nil, fmt.Errorf("no container found in artifact, cannot build default template")
	}

	template := &patch.Template{Ops: []patch.Op{
		{Name: OpEnsureLabel, Args: patch.Args{
			{Key: "scope", Arg: patch.StringArg(ScopePodTemplate)},
			{Key: "key", Arg: patch.StringArg("env")},
			{Key: "value", Arg: patch.HoleArg(HoleEnv)},
		}},
		{Name: OpEnsureLabel, Args: patch.Args{
			{Key: "scope", Arg: patch.StringArg(ScopePodTemplate)},
			{Key: "key", Arg: patch.StringArg("team")},
			{Key: "value", Arg: patch.HoleArg(HoleTeam)},
		}},
		{Name: OpEnsureLabel, Args: patch.Args{
			{Key: "scope", Arg: patch.StringArg(ScopePodTemplate)},
			{Key: "key", Arg: patch.StringArg("tier")},
			{Key: "value", Arg: patch.HoleArg(HoleTier)},
		}},
		{Name: OpEnsureImageVersion, Args: patch.Args{
			{Key: "container", Arg: patch.StringArg(container)},
			{Key: "version", Arg: patch.HoleArg(HoleVersion)},
		}},
		{Name: OpEnsureSecurityBaseline, Args: patch.Args{
			{Key: "container", Arg: patch.StringArg(container)},
		}},
		{Name: OpEnsureResourceProfile, Args: patch.Args{
			{Key: "container", Arg: patch.StringArg(container)},
			{Key: "profile", Arg: patch.HoleArg(HoleProfile)},
		}},
		{Name: OpEnsureReplicas, Args: patch.Args{
			{Key: "replicas", Arg: patch.HoleArg(HoleReplicas)},
		}},
		{Name: OpEnsurePriorityClass, Args: patch.Args{
			{Key: "name", Arg: patch.HoleArg(HolePriorityClass)},
		}},
	}}

	envs := withExtracted(env, ValidEnvs)
	teams := withExtracted(team, []string{"payments", "platform", "data"})
	tiers := withExtracted(tier, []string{"frontend", "backend", "data"})

	var versions []patch.Value
	for _, e := range envs {
		for _, release := range []string{"prod-1.2.3", "prod-1.2.4", "prod-1.3.0"} {
			versions = append(versions, patch.String(fmt.Sprintf(
				"%s.dkr.ecr.%s.amazonaws.com/%s/%s:%s", ecrAccount, ecrRegion, e, container, release)))
		}
	}

	space := patch.NewHoleSpace().
		Add(HoleEnv, stringValues(envs)...).
		Add(HoleTeam, stringValues(teams)...).
		Add(HoleTier, stringValues(tiers)...).
		Add(HoleVersion, versions...).
		Add(HoleProfile, patch.String("small"), patch.String("medium"), patch.String("large")).
		Add(HoleReplicas, patch.Int(2), patch.Int(3), patch.Int(4), patch.Int(5)).
		Add(HolePriorityClass, patch.String("critical"), patch.String("high-priority"))

	return template, space, nil
}

// withExtracted puts the artifact's own value first so the odometer tries
// the current state before moving anything.
func withExtracted(current string, defaults []string) []string {
	if current == "" {
		return defaults
	}
	out := []string{current}
	for _, d := range defaults {
		if d != current {
			out = append(out, d)
		}
	}
	return out
}

func stringValues(ss []string) []patch.Value {
	out := make([]patch.Value, len(ss))
	for i, s := range ss {
		out[i] = patch.String(s)
	}
	return out
}

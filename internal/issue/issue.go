// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	MissingConfigId
	InvalidEnvironmentId
	ContainerEngineNotFoundId
	PermissionDeniedId
	BuildFailureId
	TargetFailureId
	UnknownTargetId
	DependencyCycleId
	StartupFailureId
	StackLockedId
	TopologyInvalidId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the operator
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue's Markdown with the given glamour style ("dark", "light", "notty").
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range append(i.DocLinks(), i.extLinks...) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load stack configuration!

The stack configuration file could not be read or did not match the schema.

## Things you can try:
- Check the CUE syntax of your stack file
- Compare it with the defaults:
~~~
$ stackctl config show
~~~
- Point stackctl at a different file with ` + "`--config`",
	}

	missingConfigIssue = &Issue{
		id: MissingConfigId,
		mdMsg: `
# Required environment keys are missing!

stackctl reads every build and runtime parameter from a single env file and
refuses to touch any directory or image until all required keys are present.

## Required keys:
- ` + "`CKAN_VERSION`" + ` - version pin used for image tags and payload install
- ` + "`CKAN_HOME`" + ` - home path inside the container
- ` + "`CKAN_STORAGE_PATH`" + ` - storage path inside the container
- ` + "`CKAN_CONFIG`" + ` - configuration path inside the container

## Things you can try:
~~~
$ stackctl env check --env-file .env
~~~`,
	}

	invalidEnvironmentIssue = &Issue{
		id: InvalidEnvironmentId,
		mdMsg: `
# Environment values are invalid!

All required keys are present, but at least one value does not have the expected shape.

## Things you can try:
- Paths must be absolute container paths (e.g. ` + "`/srv/app`" + `)
- The version pin must be usable as an image tag (letters, digits, ` + "`.`, `_`, `-`" + `)`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not available!

Neither docker nor podman could be reached.

## Things you can try:
- Install Docker or Podman and make sure the daemon/service is running
- Check that your user can talk to the engine:
~~~
$ docker version
~~~
- Select the engine explicitly with ` + "`container_engine`" + ` in your stack file`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied while fixing volume ownership!

Some volume directories are owned by another user (usually root, left behind by a
container) and stackctl could not change their ownership.

## Things you can try:
- Run the command from a terminal so ` + "`sudo`" + ` can ask for your password
- In scripts and CI, make sure ` + "`sudo`" + ` works without a password prompt:
~~~
$ sudo -n true
~~~
- Or run the command once as root:
~~~
$ sudo stackctl chown-volumes
~~~`,
	}

	buildFailureIssue = &Issue{
		id: BuildFailureId,
		mdMsg: `
# Image build failed!

A build stage failed. No image was tagged for the failed stage, so the previous
image (if any) is still the one in use.

## Things you can try:
- Read the build output above to find the failing step
- Rebuild every layer from scratch:
~~~
$ stackctl rebuild-all
~~~`,
	}

	targetFailureIssue = &Issue{
		id: TargetFailureId,
		mdMsg: `
# Lifecycle command failed!

A prerequisite or step failed and the rest of the command chain was not run.

## Things you can try:
- Inspect the order that would run:
~~~
$ stackctl --dry-run <command>
~~~
- Fix the failing step and run the command again; completed steps are idempotent`,
	}

	unknownTargetIssue = &Issue{
		id: UnknownTargetId,
		mdMsg: `
# Unknown lifecycle command!

## Things you can try:
~~~
$ stackctl targets
~~~`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

The lifecycle target graph contains a cycle, so no valid execution order exists.
This is a defect in the target definitions.`,
	}

	startupFailureIssue = &Issue{
		id: StartupFailureId,
		mdMsg: `
# Container startup failed!

The entry sequence stopped before reaching keep-alive. The foreground process is
never restarted automatically; restart the container once the cause is fixed.

## Things you can try:
- Check that the background service becomes ready within ` + "`--ready-timeout`" + `
- Run the foreground command by hand inside the container`,
	}

	stackLockedIssue = &Issue{
		id: StackLockedId,
		mdMsg: `
# Another stackctl invocation is running!

Volume directories and the build cache are shared state; only one invocation
may modify them at a time.

## Things you can try:
- Wait for the other invocation to finish and retry`,
	}

	topologyInvalidIssue = &Issue{
		id: TopologyInvalidId,
		mdMsg: `
# Compose topology is invalid!

The development topology must be the production definition plus an additive
overlay. A service was added, removed or had its image changed by the overlay.

## Things you can try:
- Keep only extra volumes and environment in the development overlay
~~~
$ docker compose -f docker-compose.yml -f docker-compose.dev.yml config
~~~`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		missingConfigIssue.Id():           missingConfigIssue,
		invalidEnvironmentIssue.Id():      invalidEnvironmentIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
		buildFailureIssue.Id():            buildFailureIssue,
		targetFailureIssue.Id():           targetFailureIssue,
		unknownTargetIssue.Id():           unknownTargetIssue,
		dependencyCycleIssue.Id():         dependencyCycleIssue,
		startupFailureIssue.Id():          startupFailureIssue,
		stackLockedIssue.Id():             stackLockedIssue,
		topologyInvalidIssue.Id():         topologyInvalidIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	values := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		values = append(values, i)
	}
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}

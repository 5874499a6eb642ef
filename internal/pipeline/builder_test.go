package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	in, err := ParseInput("registry:linkerAddress")
	require.NoError(t, err)
	require.Equal(t, Input{Source: SourceRegistry, Name: "linkerAddress"}, in)
	require.Equal(t, "registry:linkerAddress", in.String())

	in, err = ParseInput(" step:deploy.entityAddress ")
	require.NoError(t, err)
	require.Equal(t, Input{Source: SourceStep, Name: "deploy.entityAddress"}, in)

	in, err = ParseInput("param:counterpartRoutingId")
	require.NoError(t, err)
	require.Equal(t, SourceParam, in.Source)

	for _, bad := range []string{"", "linker", "registry:", "registry:nope", "step:deploy", "step:.x", "env:KEY"} {
		_, err := ParseInput(bad)
		require.Error(t, err, bad)
	}
}

func TestBuilder_Build(t *testing.T) {
	p, err := NewBuilder("demo", "SampleFeeChain").
		Description("demo pipeline").
		Step("deploy", KindDeploy, Inputs("param:name", "registry:handlerAddress")).
		Step("record-address", KindRecord, Inputs("step:deploy.entityAddress"), Field("entityAddress")).
		Step("set-linker", KindConfigure, Method("setLinker"), Inputs("registry:linkerAddress"), GasLimit(90000), Message("Linker address set")).
		Build()
	require.NoError(t, err)
	require.Equal(t, "demo", p.Name)
	require.Equal(t, SourceBuiltin, p.Source)
	require.Len(t, p.Steps, 3)

	s, ok := p.Step("set-linker")
	require.True(t, ok)
	require.Equal(t, uint64(90000), s.GasLimit)
	require.Equal(t, "SampleFeeChain", p.ContractFor(s))
	require.Equal(t, Input{Source: SourceRegistry, Name: "entityAddress"}, s.TargetInput())
	require.Equal(t, []string{"name"}, p.Params())
}

func TestBuilder_ValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		build func() *Builder
		want  error
	}{
		{
			name:  "no name",
			build: func() *Builder { return NewBuilder("", "X").Step("a", KindConfigure, Method("m")) },
			want:  ErrPipelineName,
		},
		{
			name:  "empty",
			build: func() *Builder { return NewBuilder("p", "X") },
			want:  ErrPipelineEmpty,
		},
		{
			name: "duplicate step",
			build: func() *Builder {
				return NewBuilder("p", "X").
					Step("a", KindConfigure, Method("m")).
					Step("a", KindConfigure, Method("n"))
			},
			want: ErrDuplicateStep,
		},
		{
			name: "dangling input",
			build: func() *Builder {
				return NewBuilder("p", "X").
					Step("record", KindRecord, Inputs("step:deploy.entityAddress"), Field("entityAddress")).
					Step("deploy", KindDeploy)
			},
			want: ErrDanglingInput,
		},
		{
			name: "undeclared output",
			build: func() *Builder {
				return NewBuilder("p", "X").
					Step("a", KindConfigure, Method("m")).
					Step("b", KindConfigure, Method("n"), Inputs("step:a.result"))
			},
			want: ErrDanglingInput,
		},
		{
			name: "two deploys",
			build: func() *Builder {
				return NewBuilder("p", "X").Step("a", KindDeploy).Step("b", KindDeploy)
			},
			want: ErrMultipleDeploys,
		},
		{
			name:  "configure without method",
			build: func() *Builder { return NewBuilder("p", "X").Step("a", KindConfigure) },
			want:  ErrInvalidStep,
		},
		{
			name:  "record unknown field",
			build: func() *Builder { return NewBuilder("p", "X").Step("a", KindRecord, Inputs("param:v"), Field("color")) },
			want:  ErrInvalidStep,
		},
		{
			name:  "map without contract",
			build: func() *Builder { return NewBuilder("p", "X").Step("a", KindMap, Method("MapContract")) },
			want:  ErrInvalidStep,
		},
		{
			name:  "unknown kind",
			build: func() *Builder { return NewBuilder("p", "X").Step("a", Kind("sleep")) },
			want:  ErrInvalidStep,
		},
		{
			name:  "bad input reference",
			build: func() *Builder { return NewBuilder("p", "X").Step("a", KindConfigure, Method("m"), Inputs("nowhere")) },
			want:  ErrInvalidStep,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBuilder_TargetMayReferenceEarlierStep(t *testing.T) {
	p, err := NewBuilder("p", "X").
		Step("deploy", KindDeploy).
		Step("set", KindConfigure, Method("m"), Target("step:deploy.entityAddress")).
		Build()
	require.NoError(t, err)
	s, _ := p.Step("set")
	require.Equal(t, "step:deploy.entityAddress", s.TargetInput().String())
	require.Equal(t, []string{"deploy"}, s.DependsOn())

	d, _ := p.Step("deploy")
	require.Empty(t, d.DependsOn())
}

package workload

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance/v2"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudbench/pkg/artifact"
)

func TestBlobProber(t *testing.T) {
	store, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)

	prober, err := NewBlobProber(store, "scraped-data")
	require.NoError(t, err)

	state, err := prober.Probe(context.Background(), "articles.json")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)

	require.NoError(t, store.Put(context.Background(), "scraped-data", "articles.json", []byte("[]")))

	state, err = prober.Probe(context.Background(), "articles.json")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.True(t, state.Terminal())
}

func TestNewBlobProberValidates(t *testing.T) {
	_, err := NewBlobProber(nil, "c")
	assert.Error(t, err)

	store, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewBlobProber(store, " ")
	assert.Error(t, err)
}

type fakeGroups struct {
	group armcontainerinstance.ContainerGroup
	err   error
}

func (f fakeGroups) Get(context.Context, string, string, *armcontainerinstance.ContainerGroupsClientGetOptions) (armcontainerinstance.ContainerGroupsClientGetResponse, error) {
	return armcontainerinstance.ContainerGroupsClientGetResponse{ContainerGroup: f.group}, f.err
}

func groupWith(state string, exitCode *int32) armcontainerinstance.ContainerGroup {
	container := &armcontainerinstance.Container{
		Name:       to.Ptr("scraper"),
		Properties: &armcontainerinstance.ContainerProperties{},
	}
	if exitCode != nil {
		container.Properties.InstanceView = &armcontainerinstance.ContainerPropertiesInstanceView{
			CurrentState: &armcontainerinstance.ContainerState{
				State:    to.Ptr("Terminated"),
				ExitCode: exitCode,
			},
		}
	}
	return armcontainerinstance.ContainerGroup{
		Properties: &armcontainerinstance.ContainerGroupPropertiesProperties{
			Containers:   []*armcontainerinstance.Container{container},
			InstanceView: &armcontainerinstance.ContainerGroupPropertiesInstanceView{State: to.Ptr(state)},
		},
	}
}

func TestContainerGroupProber(t *testing.T) {
	tests := []struct {
		name  string
		group armcontainerinstance.ContainerGroup
		err   error
		want  State
	}{
		{name: "running", group: groupWith("Running", nil), want: StateRunning},
		{name: "succeeded", group: groupWith("Succeeded", to.Ptr[int32](0)), want: StateCompleted},
		{name: "failed", group: groupWith("Failed", nil), want: StateErrored},
		{name: "non-zero exit", group: groupWith("Running", to.Ptr[int32](1)), want: StateErrored},
		{name: "no properties", group: armcontainerinstance.ContainerGroup{}, want: StateRunning},
		{name: "not found yet", err: &azcore.ResponseError{StatusCode: 404}, want: StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ContainerGroupProber{groups: fakeGroups{group: tt.group, err: tt.err}, resourceGroup: "rg"}
			state, err := p.Probe(context.Background(), "cg-scraper")
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestContainerGroupProberError(t *testing.T) {
	p := &ContainerGroupProber{groups: fakeGroups{err: errors.New("throttled")}, resourceGroup: "rg"}
	_, err := p.Probe(context.Background(), "cg-scraper")

	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, "cg-scraper", probeErr.Handle)
}

func TestRegistryKeychain(t *testing.T) {
	kc := registryKeychain{login: RegistryLogin{Server: "benchacr.azurecr.io", Username: "admin", Password: "pw"}}

	own, err := name.ParseReference("benchacr.azurecr.io/cloudbenchmark-scraper:latest")
	require.NoError(t, err)
	auth, err := kc.Resolve(own.Context())
	require.NoError(t, err)
	cfg, err := auth.Authorization()
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, "pw", cfg.Password)

	other, err := name.ParseReference("chrisworkspace/cloudbenchmark-scraper:latest")
	require.NoError(t, err)
	auth, err = kc.Resolve(other.Context())
	require.NoError(t, err)
	assert.Equal(t, authn.Anonymous, auth)
}

func TestPusherPush(t *testing.T) {
	var gotSrc, gotDst string
	p := NewPusher(authn.DefaultKeychain)
	p.copy = func(src, dst string, opts ...crane.Option) error {
		gotSrc, gotDst = src, dst
		return nil
	}

	ref, err := p.Push(context.Background(), "chrisworkspace/cloudbenchmark-scraper:latest", "cloudbenchmark-scraper:latest",
		RegistryLogin{Server: "benchacr.azurecr.io/", Username: "admin", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "benchacr.azurecr.io/cloudbenchmark-scraper:latest", ref)
	assert.Equal(t, "chrisworkspace/cloudbenchmark-scraper:latest", gotSrc)
	assert.Equal(t, ref, gotDst)
}

func TestPusherErrors(t *testing.T) {
	p := NewPusher(nil)
	p.copy = func(string, string, ...crane.Option) error { return errors.New("denied") }

	_, err := p.Push(context.Background(), "", "repo", RegistryLogin{Server: "r"})
	assert.Error(t, err)

	_, err = p.Push(context.Background(), "src", "repo", RegistryLogin{})
	assert.Error(t, err)

	_, err = p.Push(context.Background(), "src", "repo", RegistryLogin{Server: "r.io"})
	assert.ErrorContains(t, err, "denied")
}

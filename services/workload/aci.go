package workload

import (
	"context"
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance/v2"
)

type containerGroupGetter interface {
	Get(ctx context.Context, resourceGroupName, containerGroupName string, options *armcontainerinstance.ContainerGroupsClientGetOptions) (armcontainerinstance.ContainerGroupsClientGetResponse, error)
}

// AzureCredentials identify the service principal used for status checks.
type AzureCredentials struct {
	ClientID       string
	ClientSecret   string
	TenantID       string
	SubscriptionID string
}

// ContainerGroupProber reads the instance view of an Azure container group. The handle is
// the container group name.
type ContainerGroupProber struct {
	groups        containerGroupGetter
	resourceGroup string
}

// NewContainerGroupProber authenticates with a client secret credential and returns a
// prober scoped to resourceGroup.
func NewContainerGroupProber(creds AzureCredentials, resourceGroup string) (*ContainerGroupProber, error) {
	if strings.TrimSpace(resourceGroup) == "" {
		return nil, errors.New("resource group is required")
	}
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, err
	}
	client, err := armcontainerinstance.NewContainerGroupsClient(creds.SubscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	return &ContainerGroupProber{groups: client, resourceGroup: resourceGroup}, nil
}

func (p *ContainerGroupProber) Probe(ctx context.Context, handle string) (State, error) {
	resp, err := p.groups.Get(ctx, p.resourceGroup, handle, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			// Not visible yet right after the deploying apply returns.
			return StateRunning, nil
		}
		return "", &ProbeError{Handle: handle, Err: err}
	}
	return containerGroupState(resp.ContainerGroup), nil
}

func containerGroupState(group armcontainerinstance.ContainerGroup) State {
	props := group.Properties
	if props == nil {
		return StateRunning
	}

	for _, c := range props.Containers {
		if c == nil || c.Properties == nil || c.Properties.InstanceView == nil {
			continue
		}
		cur := c.Properties.InstanceView.CurrentState
		if cur == nil || cur.State == nil || !strings.EqualFold(*cur.State, "Terminated") {
			continue
		}
		if cur.ExitCode != nil && *cur.ExitCode != 0 {
			return StateErrored
		}
	}

	if props.InstanceView == nil || props.InstanceView.State == nil {
		return StateRunning
	}
	switch strings.ToLower(*props.InstanceView.State) {
	case "succeeded":
		return StateCompleted
	case "failed", "stopped":
		return StateErrored
	default:
		return StateRunning
	}
}

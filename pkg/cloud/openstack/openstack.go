// Package openstack implements driver.CloudStackDriver against an
// OpenStack Heat orchestration endpoint, the cloud API the system was
// originally built against.
package openstack

import (
	"context"
	"fmt"
	"time"

	"github.com/acticloud/heatspreader/pkg/driver"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/orchestration/v1/stacks"
)

// defaultHTTPTimeout backstops the provider's HTTP client when Config
// carries no Timeout, so a call the caller forgets to bound with a
// context deadline still cannot hang forever.
const defaultHTTPTimeout = 10 * time.Second

// Config names the cloud connection. Credentials are never passed as
// literal secrets here: New reads them from the OS_* environment
// variables via openstack.AuthOptionsFromEnv. No clouds.yaml file is
// read, and CloudName does not select a per-cloud profile, so every
// Driver built in one process authenticates with the same credentials.
type Config struct {
	// CloudName labels this connection in error messages; it takes no
	// part in authentication.
	CloudName string

	// Timeout bounds the provider's underlying HTTP client. Zero uses
	// defaultHTTPTimeout; per-call cancellation still flows through the
	// context passed to Get/Update on top of this backstop.
	Timeout time.Duration
}

// Driver talks to one OpenStack cloud's Heat (orchestration) service.
type Driver struct {
	cloudName string
	client    *gophercloud.ServiceClient
}

// New authenticates against the named cloud and returns a Driver bound
// to its orchestration (Heat) endpoint.
func New(cfg Config) (*Driver, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("openstack %s: reading auth options: %w", cfg.CloudName, err)
	}

	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("openstack %s: authenticating: %w", cfg.CloudName, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	provider.HTTPClient.Timeout = timeout

	client, err := openstack.NewOrchestrationV1(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return nil, fmt.Errorf("openstack %s: locating orchestration endpoint: %w", cfg.CloudName, err)
	}

	return &Driver{cloudName: cfg.CloudName, client: client}, nil
}

// Get fetches the stack's parameters. Heat identifies a stack by both
// name and ID; like the original heatclient-based controller, the stack
// name doubles as the ID, which Heat accepts for GET/PATCH.
func (d *Driver) Get(ctx context.Context, stackName string) (map[string]string, error) {
	client := d.client.WithContext(ctx)
	result, err := stacks.Get(client, stackName, stackName).Extract()
	if err != nil {
		if _, ok := err.(gophercloud.ErrDefault404); ok {
			return nil, driver.NotFound(err)
		}
		return nil, driver.Unreachable(err)
	}

	params := make(map[string]string, len(result.Parameters))
	for k, v := range result.Parameters {
		params[k] = fmt.Sprintf("%v", v)
	}
	return params, nil
}

// Update issues a Heat stack-update PATCH with the given parameters.
// PATCH preserves every existing parameter not named here, matching the
// merge-update contract of driver.CloudStackDriver.
func (d *Driver) Update(ctx context.Context, stackName string, params map[string]string) error {
	opts := stacks.UpdateOpts{
		Parameters: make(map[string]interface{}, len(params)),
	}
	for k, v := range params {
		opts.Parameters[k] = v
	}

	client := d.client.WithContext(ctx)
	err := stacks.UpdatePatch(client, stackName, stackName, opts).ExtractErr()
	if err != nil {
		if _, ok := err.(gophercloud.ErrDefault404); ok {
			return driver.NotFound(err)
		}
		return driver.Unreachable(err)
	}
	return nil
}

/*
Copyright 2024.

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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/headwind-sh/headwind/internal/buildinfo"
	"github.com/headwind-sh/headwind/internal/cluster"
	"github.com/headwind-sh/headwind/internal/config"
	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/filter"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/helmrepo"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/notify/pubsub"
	"github.com/headwind-sh/headwind/internal/notify/slack"
	"github.com/headwind-sh/headwind/internal/notify/teams"
	"github.com/headwind-sh/headwind/internal/notify/webhook"
	"github.com/headwind-sh/headwind/internal/pipeline"
	"github.com/headwind-sh/headwind/internal/reconciler"
	"github.com/headwind-sh/headwind/internal/registry"
	"github.com/headwind-sh/headwind/internal/server"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	headwindv1alpha1 "github.com/headwind-sh/headwind/api/v1alpha1"
	// +kubebuilder:scaffold:imports
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

// flagConfig holds all command-line configuration. Behavioral settings come
// from the environment (internal/config); flags wire the manager and the
// HTTP surfaces.
type flagConfig struct {
	metricsAddr          string
	probeAddr            string
	webhookAddr          string
	apiAddr              string
	enableLeaderElection bool
	secureMetrics        bool
	enableHTTP2          bool
	watchNamespaces      string
	excludeNamespaces    string
	requireLabels        string
	excludeLabels        string
}

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(headwindv1alpha1.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

func main() {
	flags := parseFlags()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zap.Options{Development: true})))

	env, err := config.Load()
	if err != nil {
		setupLog.Error(err, "invalid environment configuration")
		os.Exit(1)
	}

	mgr := setupManager(flags)
	controllerVersion := buildinfo.ControllerVersion()

	source := model.SourceMetadata{
		ClusterID:         cluster.ResolveClusterID(context.Background(), env.ClusterID),
		ControllerVersion: controllerVersion,
	}

	// Notification fan-out
	events := make(chan model.UpdateEvent, 100)
	sinks := setupSinks(env)
	if err := mgr.Add(notify.NewQueue(events, sinks)); err != nil {
		setupLog.Error(err, "unable to start notification queue")
		os.Exit(1)
	}

	// Update pipeline and event dispatch
	pipe := pipeline.New(mgr.GetClient(), health.NewMonitor(mgr.GetClient()), events, source)
	index := dispatch.NewIndex()
	dispatcher := dispatch.New(index, pipe)
	if err := mgr.Add(dispatcher); err != nil {
		setupLog.Error(err, "unable to start dispatcher")
		os.Exit(1)
	}

	creds := helmrepo.NewCredentialStore()

	if env.PollingEnabled {
		poller := dispatch.NewPoller(
			dispatch.PollerConfig{
				Interval:          env.PollingInterval(),
				HelmAutoDiscovery: env.HelmAutoDiscovery,
			},
			index,
			dispatcher,
			registry.NewClient(1*time.Minute),
			helmrepo.NewClient(creds.Get),
		)
		if err := mgr.Add(poller); err != nil {
			setupLog.Error(err, "unable to start registry poller")
			os.Exit(1)
		}
		setupLog.Info("Registry polling enabled",
			"interval", env.PollingInterval(),
			"helmAutoDiscovery", env.HelmAutoDiscovery)
	}

	if env.ControllersEnabled {
		setupReconcilers(mgr, flags, index, creds, pipe)
	} else {
		setupLog.Info("Controllers disabled via HEADWIND_CONTROLLERS_ENABLED=false")
	}

	// HTTP surfaces
	if err := mgr.Add(server.NewWebhookServer(flags.webhookAddr, dispatcher)); err != nil {
		setupLog.Error(err, "unable to start webhook intake")
		os.Exit(1)
	}
	if err := mgr.Add(server.NewAPIServer(flags.apiAddr, mgr.GetClient(), pipe)); err != nil {
		setupLog.Error(err, "unable to start approval API")
		os.Exit(1)
	}

	setupHealthChecks(mgr)

	setupLog.Info("starting manager", "version", controllerVersion, "clusterID", source.ClusterID)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var flags flagConfig

	flag.StringVar(&flags.metricsAddr, "metrics-bind-address", ":9090", "The address the metrics endpoint binds to. "+
		"Use :8443 for HTTPS or :9090 for HTTP, or leave as 0 to disable the metrics service.")
	flag.StringVar(&flags.probeAddr, "health-probe-bind-address", ":8082", "The address the probe endpoint binds to.")
	flag.StringVar(&flags.webhookAddr, "webhook-bind-address", ":8080", "The address the registry webhook intake binds to.")
	flag.StringVar(&flags.apiAddr, "api-bind-address", ":8081", "The address the approval/rollback API binds to.")
	flag.BoolVar(&flags.enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.BoolVar(&flags.secureMetrics, "metrics-secure", false,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	flag.BoolVar(&flags.enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics server")

	flag.StringVar(&flags.watchNamespaces, "watch-namespaces", "",
		"Comma-separated list of namespace patterns to manage (e.g., 'production-*,staging-*')")
	flag.StringVar(&flags.excludeNamespaces, "exclude-namespaces", "kube-system,kube-public,kube-node-lease",
		"Comma-separated list of namespace patterns to exclude")
	flag.StringVar(&flags.requireLabels, "require-labels", "",
		"Comma-separated list of label keys that must be present on managed workloads")
	flag.StringVar(&flags.excludeLabels, "exclude-labels", "",
		"Comma-separated list of label key=value pairs that cause exclusion (e.g., 'headwind.sh/ignore=true')")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	return flags
}

func setupManager(flags flagConfig) ctrl.Manager {
	var tlsOpts []func(*tls.Config)

	if !flags.enableHTTP2 {
		disableHTTP2 := func(c *tls.Config) {
			setupLog.Info("disabling http/2")
			c.NextProtos = []string{"http/1.1"}
		}
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	metricsServerOptions := metricsserver.Options{
		BindAddress:   flags.metricsAddr,
		SecureServing: flags.secureMetrics,
		TLSOpts:       tlsOpts,
	}

	if flags.secureMetrics {
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		HealthProbeBindAddress: flags.probeAddr,
		LeaderElection:         flags.enableLeaderElection,
		LeaderElectionID:       "a9f2c4d1.headwind.sh",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	return mgr
}

func setupSinks(env config.Config) []notify.EventSink {
	var sinks []notify.EventSink

	if env.SlackEnabled && env.SlackWebhookURL != "" {
		sinks = append(sinks, slack.New(env.SlackWebhookURL, env.SlackChannel, env.WebhookTimeout(), env.WebhookMaxRetries))
		setupLog.Info("Slack sink enabled", "channel", env.SlackChannel)
	}

	if env.TeamsEnabled && env.TeamsWebhookURL != "" {
		sinks = append(sinks, teams.New(env.TeamsWebhookURL, env.WebhookTimeout(), env.WebhookMaxRetries))
		setupLog.Info("Teams sink enabled")
	}

	if env.WebhookEnabled && env.WebhookURL != "" {
		sinks = append(sinks, webhook.New(env.WebhookURL, env.WebhookSecret, env.WebhookTimeout(), env.WebhookMaxRetries))
		setupLog.Info("Generic webhook sink enabled",
			"endpoint", env.WebhookURL,
			"signed", env.WebhookSecret != "")
	}

	if env.PubSubTopic != "" {
		pubsubSink, err := pubsub.New(context.Background(), env.PubSubTopic, env.ClusterID)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub sink",
				"hint", "Ensure valid credentials via Workload Identity, GOOGLE_APPLICATION_CREDENTIALS, or gcloud auth")
			os.Exit(1)
		}
		sinks = append(sinks, pubsubSink)
		setupLog.Info("Google Pub/Sub sink enabled", "topic", env.PubSubTopic)
	}

	if len(sinks) == 0 {
		setupLog.Info("No notification sinks configured, events will only be exported as metrics")
	}

	return sinks
}

func setupReconcilers(mgr ctrl.Manager, flags flagConfig, index *dispatch.Index, creds *helmrepo.CredentialStore, pipe *pipeline.Pipeline) {
	workloadFilter := filter.New(filter.Config{
		WatchNamespaces:   splitAndTrim(flags.watchNamespaces),
		ExcludeNamespaces: splitAndTrim(flags.excludeNamespaces),
		RequireLabels:     splitAndTrim(flags.requireLabels),
		ExcludeLabels:     splitAndTrim(flags.excludeLabels),
	})

	shared := reconciler.NewWorkloadReconciler(
		mgr.GetClient(),
		mgr.GetScheme(),
		mgr.GetEventRecorderFor("headwind"),
		index,
		workloadFilter,
	)

	if err := reconciler.NewDeploymentReconciler(shared).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "Deployment")
		os.Exit(1)
	}
	if err := reconciler.NewStatefulSetReconciler(shared).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "StatefulSet")
		os.Exit(1)
	}
	if err := reconciler.NewDaemonSetReconciler(shared).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "DaemonSet")
		os.Exit(1)
	}
	if err := reconciler.NewHelmReleaseReconciler(shared, creds).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "HelmRelease")
		os.Exit(1)
	}
	if err := reconciler.NewUpdateRequestReconciler(mgr.GetClient(), mgr.GetScheme(), pipe).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "UpdateRequest")
		os.Exit(1)
	}
}

func setupHealthChecks(mgr ctrl.Manager) {
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace from each element
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

package config

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	It("applies the documented defaults", func() {
		cfg, err := Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.ControllersEnabled).To(BeTrue())
		Expect(cfg.PollingEnabled).To(BeFalse())
		Expect(cfg.PollingInterval()).To(Equal(300 * time.Second))
		Expect(cfg.HelmAutoDiscovery).To(BeTrue())
		Expect(cfg.WebhookTimeout()).To(Equal(10 * time.Second))
		Expect(cfg.WebhookMaxRetries).To(Equal(3))
		Expect(cfg.SlackEnabled).To(BeFalse())
		Expect(cfg.TeamsEnabled).To(BeFalse())
		Expect(cfg.WebhookEnabled).To(BeFalse())
	})

	It("reads overrides from the environment", func() {
		GinkgoT().Setenv("HEADWIND_POLLING_ENABLED", "true")
		GinkgoT().Setenv("HEADWIND_POLLING_INTERVAL", "60")
		GinkgoT().Setenv("HEADWIND_HELM_AUTO_DISCOVERY", "false")
		GinkgoT().Setenv("CLUSTER_ID", "prod.eu01")
		GinkgoT().Setenv("SLACK_ENABLED", "true")
		GinkgoT().Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.example/T000")
		GinkgoT().Setenv("SLACK_CHANNEL", "#deploys")
		GinkgoT().Setenv("WEBHOOK_ENABLED", "true")
		GinkgoT().Setenv("WEBHOOK_URL", "https://ops.example/hook")
		GinkgoT().Setenv("WEBHOOK_SECRET", "hunter2")
		GinkgoT().Setenv("WEBHOOK_TIMEOUT", "30")
		GinkgoT().Setenv("WEBHOOK_MAX_RETRIES", "5")
		GinkgoT().Setenv("PUBSUB_TOPIC", "projects/acme/topics/headwind")

		cfg, err := Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.PollingEnabled).To(BeTrue())
		Expect(cfg.PollingInterval()).To(Equal(time.Minute))
		Expect(cfg.HelmAutoDiscovery).To(BeFalse())
		Expect(cfg.ClusterID).To(Equal("prod.eu01"))
		Expect(cfg.SlackEnabled).To(BeTrue())
		Expect(cfg.SlackChannel).To(Equal("#deploys"))
		Expect(cfg.WebhookURL).To(Equal("https://ops.example/hook"))
		Expect(cfg.WebhookSecret).To(Equal("hunter2"))
		Expect(cfg.WebhookTimeout()).To(Equal(30 * time.Second))
		Expect(cfg.WebhookMaxRetries).To(Equal(5))
		Expect(cfg.PubSubTopic).To(Equal("projects/acme/topics/headwind"))
	})

	It("rejects malformed values", func() {
		GinkgoT().Setenv("HEADWIND_POLLING_ENABLED", "definitely")
		_, err := Load()
		Expect(err).To(HaveOccurred())
	})
})

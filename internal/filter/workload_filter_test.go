package filter

import "testing"

func TestAllowsNamespace(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		namespace string
		want      bool
	}{
		{name: "empty config allows all", config: Config{}, namespace: "anything", want: true},
		{name: "excluded namespace", config: Config{ExcludeNamespaces: []string{"kube-*"}}, namespace: "kube-system", want: false},
		{name: "watch pattern match", config: Config{WatchNamespaces: []string{"production-*"}}, namespace: "production-eu", want: true},
		{name: "watch pattern miss", config: Config{WatchNamespaces: []string{"production-*"}}, namespace: "staging", want: false},
		{name: "exclusion beats watch", config: Config{WatchNamespaces: []string{"*"}, ExcludeNamespaces: []string{"staging"}}, namespace: "staging", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.config).Allows(tt.namespace, nil); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.namespace, got, tt.want)
			}
		})
	}
}

func TestAllowsLabels(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		labels map[string]string
		want   bool
	}{
		{
			name:   "required label present",
			config: Config{RequireLabels: []string{"app.kubernetes.io/managed-by"}},
			labels: map[string]string{"app.kubernetes.io/managed-by": "helm"},
			want:   true,
		},
		{
			name:   "required label missing",
			config: Config{RequireLabels: []string{"app.kubernetes.io/managed-by"}},
			labels: map[string]string{},
			want:   false,
		},
		{
			name:   "exclusion label key=value matches",
			config: Config{ExcludeLabels: []string{"headwind.sh/ignore=true"}},
			labels: map[string]string{"headwind.sh/ignore": "true"},
			want:   false,
		},
		{
			name:   "exclusion label value differs",
			config: Config{ExcludeLabels: []string{"headwind.sh/ignore=true"}},
			labels: map[string]string{"headwind.sh/ignore": "false"},
			want:   true,
		},
		{
			name:   "bare exclusion key matches any value",
			config: Config{ExcludeLabels: []string{"headwind.sh/ignore"}},
			labels: map[string]string{"headwind.sh/ignore": "whatever"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.config).Allows("default", tt.labels); got != tt.want {
				t.Errorf("Allows(labels=%v) = %v, want %v", tt.labels, got, tt.want)
			}
		})
	}
}

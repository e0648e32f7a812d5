package secret

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	ProviderKubernetes = "k8s"
	defaultNamespace   = "default"
)

// KubernetesConfig describes how to reach the Kubernetes API.
type KubernetesConfig struct {
	KubeConfigPath string
	Namespace      string
}

// KubernetesProvider reads keys of Kubernetes Secret resources. The client
// is built on first use.
type KubernetesProvider struct {
	namespace  string
	kubeconfig string

	once   sync.Once
	client kubernetes.Interface
	err    error
}

func NewKubernetesProvider(cfg KubernetesConfig) *KubernetesProvider {
	return &KubernetesProvider{namespace: namespaceOrDefault(cfg.Namespace), kubeconfig: cfg.KubeConfigPath}
}

// NewKubernetesProviderWithClient uses client instead of building one.
func NewKubernetesProviderWithClient(client kubernetes.Interface, namespace string) *KubernetesProvider {
	p := &KubernetesProvider{namespace: namespaceOrDefault(namespace), client: client}
	p.once.Do(func() {})
	return p
}

// Lookup reads secret://k8s/[<namespace>/]<secret>/<key>.
func (p *KubernetesProvider) Lookup(ctx context.Context, ref *Reference) (string, error) {
	namespace := p.namespace
	var name, key string

	switch len(ref.Segments) {
	case 2:
		name, key = ref.Segments[0], ref.Segments[1]
	case 3:
		namespace, name, key = ref.Segments[0], ref.Segments[1], ref.Segments[2]
	default:
		return "", errors.Errorf("kubernetes secret %q must be secret://k8s/[<namespace>/]<secret>/<key>", ref.Raw)
	}
	if ns := strings.TrimSpace(ref.Query.Get("namespace")); ns != "" {
		namespace = ns
	}
	if name == "" || key == "" {
		return "", errors.Errorf("kubernetes secret %q missing name or key", ref.Raw)
	}

	client, err := p.clientset()
	if err != nil {
		return "", err
	}

	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "load kubernetes secret %s/%s", namespace, name)
	}
	value, ok := secret.Data[key]
	if !ok {
		return "", errors.Errorf("kubernetes secret %s/%s missing key %s", namespace, name, key)
	}
	return string(value), nil
}

func (p *KubernetesProvider) clientset() (kubernetes.Interface, error) {
	p.once.Do(func() {
		cfg, err := kubeConfig(p.kubeconfig)
		if err != nil {
			p.err = errors.Wrap(err, "load kubernetes config")
			return
		}
		p.client, p.err = kubernetes.NewForConfig(cfg)
		if p.err != nil {
			p.err = errors.Wrap(p.err, "create kubernetes client")
		}
	})
	return p.client, p.err
}

func kubeConfig(path string) (*rest.Config, error) {
	if strings.TrimSpace(path) != "" {
		return clientcmd.BuildConfigFromFlags("", path)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(candidate); err == nil {
			return clientcmd.BuildConfigFromFlags("", candidate)
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

func namespaceOrDefault(ns string) string {
	if ns = strings.TrimSpace(ns); ns != "" {
		return ns
	}
	return defaultNamespace
}

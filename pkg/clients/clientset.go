package clients

import (
	chaosClient "github.com/litmuschaos/chaos-operator/pkg/client/clientset/versioned/typed/litmuschaos/v1alpha1"
	"github.com/pkg/errors"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientSets is a collection of clientSets and kubeConfig needed
type ClientSets struct {
	KubeClient    kubernetes.Interface
	LitmusClient  chaosClient.LitmuschaosV1alpha1Interface
	DynamicClient dynamic.Interface
	KubeConfig    *rest.Config
}

// GenerateClientSetFromKubeConfig will generate both ClientSets (k8s, and Litmus) as well as the KubeConfig
// It uses the in-cluster config when kubeconfig path is empty
func (clientSets *ClientSets) GenerateClientSetFromKubeConfig(kubeconfig string) error {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return errors.Wrapf(err, "Unable to build kube config, err: %v", err)
	}
	k8sClientSet, err := kubernetes.NewForConfig(config)
	if err != nil {
		return errors.Wrapf(err, "Unable to generate kubernetes clientSet, err: %v", err)
	}
	litmusClientSet, err := chaosClient.NewForConfig(config)
	if err != nil {
		return errors.Wrapf(err, "Unable to create LitmusClientSet, err: %v", err)
	}
	dynamicClientSet, err := dynamic.NewForConfig(config)
	if err != nil {
		return errors.Wrapf(err, "Unable to create dynamic clientSet, err: %v", err)
	}
	clientSets.KubeClient = k8sClientSet
	clientSets.LitmusClient = litmusClientSet
	clientSets.DynamicClient = dynamicClientSet
	clientSets.KubeConfig = config
	return nil
}

// Package aws checks the state of the EKS worker instances before a
// node-level fault is injected, so a scenario never drains a node that is
// already unhealthy for unrelated reasons.
package aws

import (
	awssdk "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
)

// GetAWSSession will return the aws session for a given region
func GetAWSSession(region string) *session.Session {
	return session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            awssdk.Config{Region: awssdk.String(region)},
	}))
}

// GetInstanceStatus returns the EC2 state of a single instance
func GetInstanceStatus(instanceID, region string) (string, error) {
	ec2Svc := ec2.New(GetAWSSession(region))

	result, err := ec2Svc.DescribeInstances(&ec2.DescribeInstancesInput{
		InstanceIds: []*string{awssdk.String(instanceID)},
	})
	if err != nil {
		return "", err
	}
	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			if *instance.InstanceId == instanceID {
				return *instance.State.Name, nil
			}
		}
	}
	return "", errors.Errorf("failed to get the status of ec2 instance with instanceID %v", instanceID)
}

// ClusterInstancesRunning verifies every worker instance tagged with the
// EKS cluster name is in the running state
func ClusterInstancesRunning(clusterName, region string) error {
	ec2Svc := ec2.New(GetAWSSession(region))

	result, err := ec2Svc.DescribeInstances(&ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   awssdk.String("tag:eks:cluster-name"),
				Values: []*string{awssdk.String(clusterName)},
			},
		},
	})
	if err != nil {
		return errors.Errorf("failed to describe instances for cluster %v, err: %v", clusterName, err)
	}

	total := 0
	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			total++
			if *instance.State.Name != ec2.InstanceStateNameRunning {
				return errors.Errorf("instance %v of cluster %v is in %v state", *instance.InstanceId, clusterName, *instance.State.Name)
			}
		}
	}
	if total == 0 {
		return errors.Errorf("no instances found for cluster %v in region %v", clusterName, region)
	}

	log.Infof("[Preflight]: All %v worker instances of cluster %v are running", total, clusterName)
	return nil
}

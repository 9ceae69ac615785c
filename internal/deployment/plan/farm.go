package plan

import "github.com/compose-network/farm-deployer/internal/contracts"

const (
	StepDeployFactory     = "DeployFarmFactory"
	StepDeployGenerator   = "DeployFarmGenerator01"
	StepRegisterGenerator = "RegisterFarmGenerator"

	methodAllowFarmGenerator = "adminAllowFarmGenerator"
)

// FarmSteps returns the farm suite steps: the factory, the generator constructed with the
// factory address, and the registration of the generator with the factory.
func FarmSteps() []Step {
	return []Step{
		{
			Name:     StepDeployFactory,
			Kind:     KindDeploy,
			Contract: contracts.ContractNameFarmFactory,
		},
		{
			Name:     StepDeployGenerator,
			Kind:     KindDeploy,
			Contract: contracts.ContractNameFarmGenerator01,
			Args:     []Arg{Ref(StepDeployFactory)},
		},
		{
			Name:     StepRegisterGenerator,
			Kind:     KindTransact,
			Contract: contracts.ContractNameFarmFactory,
			Target:   StepDeployFactory,
			Method:   methodAllowFarmGenerator,
			Args:     []Arg{Ref(StepDeployGenerator), Value(true)},
		},
	}
}

// Farm builds the validated farm plan.
func Farm() (*Plan, error) {
	return New(FarmSteps()...)
}

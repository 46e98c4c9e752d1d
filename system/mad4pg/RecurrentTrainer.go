package mad4pg

import (
	"fmt"
	"sync"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// recurrentKey holds the networks, virtual machines, and solvers of
// one network key of a recurrent trainer. Policies are recurrent and
// unroll over whole replayed sequences; critics are feedforward and
// evaluate the step pairs drawn from those sequences.
type recurrentKey struct {
	agents []string

	critic        network.NeuralNet
	criticTarget  *G.Node
	criticMask    *G.Node
	criticLossVal G.Value
	criticVM      G.VM
	criticSolver  G.Solver

	policy        network.NeuralNet
	criticClone   network.NeuralNet
	obsInput      *G.Node
	policyMask    *G.Node
	policyLossVal G.Value
	policyVM      G.VM
	policySolver  G.Solver

	targetPolicy   network.NeuralNet
	targetPolicyVM G.VM

	targetCritic   network.NeuralNet
	targetProbsVal G.Value
	targetCriticVM G.VM

	support network.Support
}

// recurrentTrainer implements MAD4PG updates on replayed sequences
// with recurrent policies and decentralised critics. Each sequence of
// length T yields the step pairs (t, t+n) for t < T-n: the critic at
// step t trains towards the projection of the target critic's
// distribution at step t+n under the n-step return between them, and
// the policy trains through a critic clone evaluated at every step of
// the sequence. Steps of padding at the tail of short sequences are
// masked out of both losses.
type recurrentTrainer struct {
	mu sync.Mutex

	dims       adders.Dims
	batch      int
	seqLen     int
	bootstrapN int

	keys  []string
	byKey map[string]*recurrentKey

	table *replay.Table

	steps              int
	targetUpdatePeriod int

	count    *counter.Counter
	logger   loggers.Logger
	logEvery int
}

// RecurrentTrainer learns from replayed sequences with recurrent
// policies. Critics are decentralised: sequences carry no global
// state, and each agent's critic conditions on that agent's own
// observations and actions.
type RecurrentTrainer struct {
	*recurrentTrainer
}

// NewRecurrentTrainer creates a trainer learning recurrent policies
// from sequences of length cfg.SequenceLength, bootstrapping
// cfg.BootstrapN steps ahead within each sequence.
func NewRecurrentTrainer(cfg Config, nets *Networks, dims adders.Dims,
	table *replay.Table, count *counter.Counter,
	logger loggers.Logger) (*RecurrentTrainer, error) {
	if nets == nil || nets.NewPolicy == nil || nets.NewCritic == nil {
		return nil, fmt.Errorf("newrecurrenttrainer: no network " +
			"constructors given")
	}
	if !nets.Recurrent {
		return nil, fmt.Errorf("newrecurrenttrainer: policies are " +
			"not recurrent")
	}
	if table == nil {
		return nil, fmt.Errorf("newrecurrenttrainer: no replay table " +
			"given")
	}
	if count == nil {
		return nil, fmt.Errorf("newrecurrenttrainer: no counter given")
	}
	if cfg.PolicySolver == nil || cfg.CriticSolver == nil {
		return nil, fmt.Errorf("newrecurrenttrainer: no solvers given")
	}
	if err := architecture.ValidateShared(dims,
		cfg.SharedWeights); err != nil {
		return nil, fmt.Errorf("newrecurrenttrainer: %v", err)
	}
	if cfg.SequenceLength < 2 {
		return nil, fmt.Errorf("newrecurrenttrainer: sequences need "+
			"at least two steps \n\twant(k >= 2) \n\thave(%v)",
			cfg.SequenceLength)
	}
	if cfg.BootstrapN < 1 || cfg.BootstrapN >= cfg.SequenceLength {
		return nil, fmt.Errorf("newrecurrenttrainer: bootstrapping "+
			"horizon must be in [1, %v) \n\thave(%v)",
			cfg.SequenceLength, cfg.BootstrapN)
	}
	if cfg.TargetUpdatePeriod < 1 {
		return nil, fmt.Errorf("newrecurrenttrainer: target update "+
			"period must be positive \n\twant(k > 0) \n\thave(%v)",
			cfg.TargetUpdatePeriod)
	}

	t := &recurrentTrainer{
		dims:               dims,
		batch:              cfg.BatchSize,
		seqLen:             cfg.SequenceLength,
		bootstrapN:         cfg.BootstrapN,
		keys:               architecture.NetworkKeys(dims.Agents, cfg.SharedWeights),
		byKey:              make(map[string]*recurrentKey),
		table:              table,
		targetUpdatePeriod: cfg.TargetUpdatePeriod,
		count:              count,
		logger:             logger,
		logEvery:           cfg.LogEvery,
	}

	for _, key := range t.keys {
		var agents []string
		for _, agent := range dims.Agents {
			if architecture.NetworkKey(agent,
				cfg.SharedWeights) == key {
				agents = append(agents, agent)
			}
		}

		k, err := t.buildKey(key, agents, cfg, nets)
		if err != nil {
			return nil, fmt.Errorf("newrecurrenttrainer: %v", err)
		}
		t.byKey[key] = k
	}

	return &RecurrentTrainer{recurrentTrainer: t}, nil
}

func (t *recurrentTrainer) buildKey(key string, agents []string,
	cfg Config, nets *Networks) (*recurrentKey, error) {
	B, T, n := t.batch, t.seqLen, t.bootstrapN
	rows := B * (T - n)
	rep := agents[0]
	k := &recurrentKey{agents: agents}

	// Critic training graph over the step pairs of every sequence
	critic, err := nets.NewCritic(key, rows)
	if err != nil {
		return nil, err
	}
	dist, ok := critic.(network.Distributional)
	if !ok {
		return nil, fmt.Errorf("critic for key %v does not predict "+
			"a value distribution", key)
	}
	k.critic = critic
	k.support = dist.Support()

	features := t.dims.ObsDims[rep] + t.dims.ActionDims[rep]
	if critic.Features() != features {
		return nil, fmt.Errorf("critic input width does not match "+
			"the agent's experience \n\twant(%v) \n\thave(%v)",
			features, critic.Features())
	}

	cg := critic.Graph()
	k.criticTarget = G.NewMatrix(
		cg,
		tensor.Float64,
		G.WithShape(rows, k.support.NumAtoms),
		G.WithName("projectedTarget"),
	)
	k.criticMask = G.NewVector(
		cg,
		tensor.Float64,
		G.WithShape(rows),
		G.WithName("pairMask"),
	)
	criticLoss := network.MaskedCrossEntropy(critic.Prediction()[0],
		k.criticTarget, k.criticMask)
	G.Read(criticLoss, &k.criticLossVal)
	if _, err := G.Grad(criticLoss, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute critic gradient: %v",
			err)
	}
	k.criticVM = G.NewTapeMachine(cg,
		G.BindDualValues(critic.Learnables()...))
	k.criticSolver = cfg.CriticSolver.Config.Create()

	// Policy training graph: the policy unrolls over the whole
	// sequence and a critic clone scores its action at every step
	policy, err := nets.NewPolicy(key, B, T)
	if err != nil {
		return nil, err
	}
	if _, ok := policy.(network.Recurrent); !ok {
		return nil, fmt.Errorf("policy for key %v is not recurrent",
			key)
	}
	if len(policy.Prediction()) != T {
		return nil, fmt.Errorf("policy does not predict one action "+
			"per sequence step \n\twant(%v) \n\thave(%v)", T,
			len(policy.Prediction()))
	}
	k.policy = policy

	pg := policy.Graph()
	k.obsInput = G.NewMatrix(
		pg,
		tensor.Float64,
		G.WithShape(B*T, t.dims.ObsDims[rep]),
		G.WithName("criticObs"),
	)
	allActions := G.Must(G.Concat(0, policy.Prediction()...))
	k.criticClone, err = network.CloneWithInputsTo(critic, 1,
		[]*G.Node{k.obsInput, allActions}, pg)
	if err != nil {
		return nil, err
	}
	k.policyMask = G.NewVector(
		pg,
		tensor.Float64,
		G.WithShape(B*T),
		G.WithName("stepMask"),
	)

	expectation := network.Expectation(k.criticClone.Prediction()[0],
		k.support)
	policyLoss := G.Must(G.Neg(network.MaskedMean(expectation,
		k.policyMask)))
	G.Read(policyLoss, &k.policyLossVal)
	if _, err := G.Grad(policyLoss, policy.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute policy gradient: %v",
			err)
	}
	k.policyVM = G.NewTapeMachine(pg,
		G.BindDualValues(policy.Learnables()...))
	k.policySolver = cfg.PolicySolver.Config.Create()

	// Target networks
	k.targetPolicy, err = nets.NewPolicy(key, B, T)
	if err != nil {
		return nil, err
	}
	if err := k.targetPolicy.Set(policy); err != nil {
		return nil, err
	}
	k.targetPolicyVM = G.NewTapeMachine(k.targetPolicy.Graph())

	k.targetCritic, err = nets.NewCritic(key, rows)
	if err != nil {
		return nil, err
	}
	if err := k.targetCritic.Set(critic); err != nil {
		return nil, err
	}
	targetProbs := network.Probabilities(k.targetCritic.Prediction()[0])
	G.Read(targetProbs, &k.targetProbsVal)
	k.targetCriticVM = G.NewTapeMachine(k.targetCritic.Graph())

	return k, nil
}

// Step samples a batch of sequences and updates every critic, policy,
// and, periodically, target network. Sampling errors are returned
// unwrapped so that callers can recognise an underfilled table and
// retry.
func (t *recurrentTrainer) Step() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch, err := t.table.Sample()
	if err != nil {
		return err
	}
	mask, ok := batch[replay.MaskKey]
	if !ok {
		return fmt.Errorf("step: batch has no step mask")
	}

	var criticLoss, policyLoss float64
	updates := 0
	for _, key := range t.keys {
		k := t.byKey[key]
		for _, agent := range k.agents {
			closs, ploss, err := t.agentStep(k, agent, batch, mask)
			if err != nil {
				return fmt.Errorf("step: %v", err)
			}
			criticLoss += closs
			policyLoss += ploss
			updates++
		}
	}

	t.steps++
	if t.steps%t.targetUpdatePeriod == 0 {
		for _, key := range t.keys {
			k := t.byKey[key]
			if err := k.targetCritic.Set(k.critic); err != nil {
				return fmt.Errorf("step: %v", err)
			}
			if err := k.targetPolicy.Set(k.policy); err != nil {
				return fmt.Errorf("step: %v", err)
			}
		}
	}

	values := t.count.Increment(
		map[string]float64{counter.TrainerSteps: 1},
	)
	if t.logger != nil && t.steps%t.logEvery == 0 {
		values["critic_loss"] = criticLoss / float64(updates)
		values["policy_loss"] = policyLoss / float64(updates)
		if err := t.logger.Write(values); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	return nil
}

// agentStep updates agent's critic and policy from one sampled batch
// of sequences.
func (t *recurrentTrainer) agentStep(k *recurrentKey, agent string,
	batch replay.Batch, mask []float64) (closs, ploss float64,
	err error) {
	B, T, n := t.batch, t.seqLen, t.bootstrapN
	pairs := T - n
	rows := B * pairs
	atoms := k.support.NumAtoms
	obsDim := t.dims.ObsDims[agent]
	actDim := t.dims.ActionDims[agent]
	width := obsDim + actDim

	obs := batch[replay.ObsKey(agent)]
	actions := batch[replay.ActionKey(agent)]
	rewards := batch[replay.RewardKey(agent)]
	discounts := batch[replay.DiscountKey(agent)]
	if obs == nil || actions == nil || rewards == nil ||
		discounts == nil {
		return 0, 0, fmt.Errorf("batch is missing blocks for agent %v",
			agent)
	}

	// Target actions along the whole sequence, from the target policy
	// unrolled over the behaviour observations
	if err := k.targetPolicy.SetInput(obs); err != nil {
		return 0, 0, err
	}
	if err := k.targetPolicyVM.RunAll(); err != nil {
		return 0, 0, err
	}
	outputs := k.targetPolicy.Output()
	targetActions := make([][]float64, T)
	for s := n; s < T; s++ {
		targetActions[s] = copyValue(outputs[s])
	}
	k.targetPolicyVM.Reset()

	// Bootstrap distributions at the later step of every pair. Rows
	// are ordered pair-major: row p*B+b holds batch element b's pair
	// (p, p+n).
	targetInput := make([]float64, rows*width)
	for p := 0; p < pairs; p++ {
		s := p + n
		for b := 0; b < B; b++ {
			row := targetInput[(p*B+b)*width:]
			copy(row[:obsDim], obs[(b*T+s)*obsDim:(b*T+s+1)*obsDim])
			copy(row[obsDim:width],
				targetActions[s][b*actDim:(b+1)*actDim])
		}
	}
	if err := k.targetCritic.SetInput(targetInput); err != nil {
		return 0, 0, err
	}
	if err := k.targetCriticVM.RunAll(); err != nil {
		return 0, 0, err
	}
	flat := copyValue(k.targetProbsVal)
	k.targetCriticVM.Reset()

	probs := make([][]float64, rows)
	for r := range probs {
		probs[r] = flat[r*atoms : (r+1)*atoms]
	}

	// The n-step return and discount between the steps of every pair,
	// and the pair's mask entry. Steps of padding carry zero rewards
	// and discounts, so pairs reaching into padding bootstrap with
	// zero weight; the mask removes their loss contribution entirely.
	nStepRewards := make([]float64, rows)
	nStepDiscounts := make([]float64, rows)
	pairMask := make([]float64, rows)
	for p := 0; p < pairs; p++ {
		for b := 0; b < B; b++ {
			r := p*B + b
			ret, disc := 0.0, 1.0
			for i := 0; i < n; i++ {
				ret += disc * rewards[b*T+p+i]
				disc *= discounts[b*T+p+i]
			}
			nStepRewards[r] = ret
			nStepDiscounts[r] = disc
			pairMask[r] = mask[b*T+p]
		}
	}

	projected, err := k.support.Project(nStepRewards, nStepDiscounts,
		probs)
	if err != nil {
		return 0, 0, err
	}
	target := make([]float64, 0, rows*atoms)
	for _, row := range projected {
		target = append(target, row...)
	}

	// Critic update on the earlier step of every pair
	input := make([]float64, rows*width)
	for p := 0; p < pairs; p++ {
		for b := 0; b < B; b++ {
			row := input[(p*B+b)*width:]
			copy(row[:obsDim], obs[(b*T+p)*obsDim:(b*T+p+1)*obsDim])
			copy(row[obsDim:width],
				actions[(b*T+p)*actDim:(b*T+p+1)*actDim])
		}
	}
	if err := k.critic.SetInput(input); err != nil {
		return 0, 0, err
	}
	if err := G.Let(k.criticTarget, tensor.New(
		tensor.WithBacking(target),
		tensor.WithShape(rows, atoms),
	)); err != nil {
		return 0, 0, err
	}
	if err := G.Let(k.criticMask, tensor.New(
		tensor.WithBacking(pairMask),
		tensor.WithShape(rows),
	)); err != nil {
		return 0, 0, err
	}
	if err := k.criticVM.RunAll(); err != nil {
		return 0, 0, err
	}
	if err := k.criticSolver.Step(k.critic.Model()); err != nil {
		return 0, 0, err
	}
	closs = k.criticLossVal.Data().(float64)
	k.criticVM.Reset()

	// Policy update over every step of the sequence. The policy
	// outputs stack step by step, so the clone's observations and
	// mask are reordered step-major to line up.
	if err := k.criticClone.Set(k.critic); err != nil {
		return 0, 0, err
	}
	if err := k.policy.SetInput(obs); err != nil {
		return 0, 0, err
	}

	allObs := make([]float64, B*T*obsDim)
	stepMask := make([]float64, B*T)
	for s := 0; s < T; s++ {
		for b := 0; b < B; b++ {
			copy(allObs[(s*B+b)*obsDim:(s*B+b+1)*obsDim],
				obs[(b*T+s)*obsDim:(b*T+s+1)*obsDim])
			stepMask[s*B+b] = mask[b*T+s]
		}
	}
	if err := G.Let(k.obsInput, tensor.New(
		tensor.WithBacking(allObs),
		tensor.WithShape(B*T, obsDim),
	)); err != nil {
		return 0, 0, err
	}
	if err := G.Let(k.policyMask, tensor.New(
		tensor.WithBacking(stepMask),
		tensor.WithShape(B*T),
	)); err != nil {
		return 0, 0, err
	}
	if err := k.policyVM.RunAll(); err != nil {
		return 0, 0, err
	}
	if err := k.policySolver.Step(k.policy.Model()); err != nil {
		return 0, 0, err
	}
	ploss = k.policyLossVal.Data().(float64)
	k.policyVM.Reset()

	return closs, ploss, nil
}

// CopyPoliciesTo copies the online policy weights into nets, keyed the
// same way as the trainer's networks.
func (t *recurrentTrainer) CopyPoliciesTo(
	nets map[string]network.NeuralNet) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, dst := range nets {
		k, ok := t.byKey[key]
		if !ok {
			return fmt.Errorf("copypoliciesto: no networks stored "+
				"under key %v", key)
		}
		if err := dst.Set(k.policy); err != nil {
			return fmt.Errorf("copypoliciesto: %v", err)
		}
	}
	return nil
}

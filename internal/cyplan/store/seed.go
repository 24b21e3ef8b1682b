package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/utils/id"
)

// Seeded framework ids.
const (
	FrameworkIDNISTCSF    = "nist-csf-001"
	FrameworkIDISO27001   = "iso-27001-001"
	FrameworkIDNISTAIRMF  = "nist-ai-rmf-001"
	FrameworkIDMITREATLAS = "mitre-atlas-001"
)

var seedFrameworks = []model.Framework{
	{
		ID:          FrameworkIDNISTCSF,
		Name:        "NIST Cybersecurity Framework",
		Type:        model.FrameworkNISTCSF,
		Description: "A voluntary framework based on existing standards, guidelines, and practices for organizations to better manage and reduce cybersecurity risk.",
		Version:     "1.1",
	},
	{
		ID:          FrameworkIDISO27001,
		Name:        "ISO/IEC 27001:2013",
		Type:        model.FrameworkISO27001,
		Description: "An international standard for managing information security that specifies requirements for establishing, implementing, maintaining, and continually improving an information security management system.",
		Version:     "2013",
	},
	{
		ID:          FrameworkIDNISTAIRMF,
		Name:        "NIST AI Risk Management Framework",
		Type:        model.FrameworkNISTAIRMF,
		Description: "A framework to help organizations manage risks associated with AI systems.",
		Version:     "1.0",
	},
	{
		ID:          FrameworkIDMITREATLAS,
		Name:        "MITRE ATLAS",
		Type:        model.FrameworkMITREATLAS,
		Description: "Adversarial Threat Landscape for Artificial-Intelligence Systems - a knowledge base of adversary tactics and techniques for AI systems.",
		Version:     "1.0",
	},
}

var seedControls = []model.Control{
	{FrameworkID: FrameworkIDNISTCSF, Reference: "PR.AC-3", Title: "Access control least privilege", Category: "Protect", MaturityCost: 2, SeverityMitigated: 4,
		Description: "Remote access is managed. Ensure least privilege and separation of duties for all users."},
	{FrameworkID: FrameworkIDNISTCSF, Reference: "PR.IP-1", Title: "Baseline configuration", Category: "Protect", MaturityCost: 3, SeverityMitigated: 4,
		Description: "Baseline configurations of information technology/industrial control systems are created and maintained incorporating security."},
	{FrameworkID: FrameworkIDNISTCSF, Reference: "DE.AE-1", Title: "Baseline network operations", Category: "Detect", MaturityCost: 3, SeverityMitigated: 3,
		Description: "A baseline of network operations and expected data flows for users and systems is established and managed."},
	{FrameworkID: FrameworkIDISO27001, Reference: "A.8.1.1", Title: "Inventory of assets", Category: "Asset Management", MaturityCost: 2, SeverityMitigated: 3,
		Description: "Assets associated with information and information processing facilities shall be identified and an inventory of these assets shall be drawn up and maintained."},
	{FrameworkID: FrameworkIDISO27001, Reference: "A.9.2.1", Title: "User access management", Category: "Access Control", MaturityCost: 2, SeverityMitigated: 4,
		Description: "User access rights to networks and network services should be controlled via a formal user access management process."},
	{FrameworkID: FrameworkIDISO27001, Reference: "A.12.6.1", Title: "Management of technical vulnerabilities", Category: "Operations Security", MaturityCost: 3, SeverityMitigated: 4,
		Description: "Information about technical vulnerabilities of information systems being used shall be obtained in a timely fashion, the organization's exposure to such vulnerabilities evaluated and appropriate measures taken to address the associated risk."},
	{FrameworkID: FrameworkIDNISTAIRMF, Reference: "GOV-1", Title: "AI risk governance", Category: "Governance", MaturityCost: 3, SeverityMitigated: 4,
		Description: "Establish governance structures and processes to manage AI risks across the organization."},
	{FrameworkID: FrameworkIDNISTAIRMF, Reference: "MAP-2", Title: "Adversarial risks", Category: "Mapping", MaturityCost: 2, SeverityMitigated: 4,
		Description: "Identify and assess adversarial risks including data poisoning, model evasion, and extraction attacks."},
}

var seedPrompts = []model.Prompt{
	{FrameworkID: FrameworkIDNISTCSF, Order: 1, Category: "Identify", Text: "Describe your organization's current approach to identifying cybersecurity risks. What assets and systems need protection?"},
	{FrameworkID: FrameworkIDNISTCSF, Order: 2, Category: "Protect", Text: "What protective measures (controls) do you currently have in place? Describe your security policies and procedures."},
	{FrameworkID: FrameworkIDNISTCSF, Order: 3, Category: "Detect", Text: "How do you currently detect cybersecurity events? What monitoring and detection capabilities exist?"},
	{FrameworkID: FrameworkIDNISTCSF, Order: 4, Category: "Respond", Text: "Describe your incident response procedures. How does your organization respond to cybersecurity incidents?"},
	{FrameworkID: FrameworkIDNISTCSF, Order: 5, Category: "Recover", Text: "What recovery planning and improvement processes do you have to restore capabilities and services after an incident?"},
	{FrameworkID: FrameworkIDISO27001, Order: 1, Category: "Context and Scope", Text: "Describe your organization's information security objectives and scope of the ISMS."},
	{FrameworkID: FrameworkIDISO27001, Order: 2, Category: "Risk Assessment", Text: "What risks to information security has your organization identified? Describe your risk assessment process."},
	{FrameworkID: FrameworkIDISO27001, Order: 3, Category: "Control Implementation", Text: "What information security controls are currently implemented? Reference relevant ISO 27001 Annex A controls if applicable."},
	{FrameworkID: FrameworkIDISO27001, Order: 4, Category: "Monitoring and Measurement", Text: "How is information security monitored, measured, and evaluated in your organization?"},
	{FrameworkID: FrameworkIDISO27001, Order: 5, Category: "Continual Improvement", Text: "Describe your approach to continual improvement of the information security management system."},
	{FrameworkID: FrameworkIDNISTAIRMF, Order: 1, Category: "AI System Context", Text: "Describe the AI system(s) you plan to deploy or currently use. What are their intended purposes and applications?"},
	{FrameworkID: FrameworkIDNISTAIRMF, Order: 2, Category: "AI Risk Identification", Text: "What potential risks and harms are associated with your AI systems? Consider accuracy, fairness, privacy, and security risks."},
	{FrameworkID: FrameworkIDNISTAIRMF, Order: 3, Category: "AI Governance", Text: "What governance and oversight mechanisms do you have for AI systems? Describe accountability structures."},
	{FrameworkID: FrameworkIDNISTAIRMF, Order: 4, Category: "AI System Reliability", Text: "How do you ensure the reliability, accuracy, and trustworthiness of your AI systems throughout their lifecycle?"},
	{FrameworkID: FrameworkIDMITREATLAS, Order: 1, Category: "Adversarial Threats", Text: "What adversarial threats are you most concerned about for your AI systems? (e.g., model evasion, data poisoning, model extraction)"},
	{FrameworkID: FrameworkIDMITREATLAS, Order: 2, Category: "Attack Surface", Text: "Describe your AI system's attack surface. What components are exposed to potential adversaries?"},
	{FrameworkID: FrameworkIDMITREATLAS, Order: 3, Category: "AI Defense", Text: "What defensive measures do you have in place to protect AI systems from adversarial attacks?"},
	{FrameworkID: FrameworkIDMITREATLAS, Order: 4, Category: "Adversarial Detection and Response", Text: "How do you detect and respond to adversarial activities targeting your AI systems?"},
}

var seedThreats = []model.Threat{
	{Name: "Phishing leading to credential theft", Category: "Social Engineering", Likelihood: 4, Impact: 4,
		Description: "Social-engineering emails or messages designed to trick users into revealing credentials or installing malware."},
	{Name: "Data poisoning (ML)", Category: "Adversarial ML", Likelihood: 2, Impact: 5,
		Description: "Adversary injects crafted samples into training data to corrupt model behavior, leading to misclassifications or backdoors."},
	{Name: "Model evasion attacks", Category: "Adversarial ML", Likelihood: 3, Impact: 4,
		Description: "Adversarial examples crafted to fool ML models at inference time, causing incorrect predictions."},
	{Name: "Model extraction", Category: "Adversarial ML", Likelihood: 2, Impact: 3,
		Description: "Attackers query a deployed model extensively to reconstruct its parameters or training data."},
	{Name: "Ransomware", Category: "Malware", Likelihood: 3, Impact: 5,
		Description: "Malware that encrypts files and demands payment for decryption keys."},
	{Name: "Unauthorized access", Category: "Access Control", Likelihood: 3, Impact: 4,
		Description: "Gaining access to systems or data without proper authorization through vulnerabilities or weak authentication."},
	{Name: "Data breach", Category: "Data Security", Likelihood: 3, Impact: 5,
		Description: "Unauthorized access and exfiltration of sensitive data."},
}

// seedMappings pairs a threat name with a control reference.
var seedMappings = []struct {
	threat, control, hint string
}{
	{"Phishing leading to credential theft", "PR.AC-3", "Access reviews, RBAC policy, privileged access approvals"},
	{"Phishing leading to credential theft", "A.9.2.1", "User access management procedures, authentication logs"},
	{"Data poisoning (ML)", "A.8.1.1", "Asset inventory including data lineage and dataset approval logs"},
	{"Data poisoning (ML)", "MAP-2", "Adversarial risk assessment, training data validation procedures"},
	{"Model evasion attacks", "MAP-2", "Adversarial testing results, model robustness evaluations"},
	{"Model evasion attacks", "DE.AE-1", "Anomaly detection logs, model inference monitoring"},
	{"Ransomware", "PR.IP-1", "Baseline configurations, system hardening documentation"},
	{"Ransomware", "A.12.6.1", "Vulnerability scanning reports, patch management records"},
	{"Unauthorized access", "PR.AC-3", "Access control lists, authentication mechanisms"},
	{"Unauthorized access", "A.9.2.1", "User access management policies, access review logs"},
	{"Data breach", "PR.AC-3", "Access logs, data classification documentation"},
	{"Data breach", "DE.AE-1", "Network monitoring logs, data flow analysis"},
}

// Seed populates frameworks, controls, prompts, threats and mappings in one
// transaction. It does nothing and returns false when frameworks already exist.
func (o *ontology) Seed(ctx context.Context) (bool, error) {
	var count int64
	if err := o.db.WithContext(ctx).Model(&model.Framework{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		frameworks := append([]model.Framework(nil), seedFrameworks...)
		if err := tx.Create(&frameworks).Error; err != nil {
			return fmt.Errorf("seed frameworks: %w", err)
		}

		controls := append([]model.Control(nil), seedControls...)
		controlIDs := make(map[string]string, len(controls))
		for i := range controls {
			controls[i].ID = id.NewULID()
			controlIDs[controls[i].Reference] = controls[i].ID
		}
		if err := tx.Create(&controls).Error; err != nil {
			return fmt.Errorf("seed controls: %w", err)
		}

		prompts := append([]model.Prompt(nil), seedPrompts...)
		for i := range prompts {
			prompts[i].ID = id.NewULID()
		}
		if err := tx.Create(&prompts).Error; err != nil {
			return fmt.Errorf("seed prompts: %w", err)
		}

		threats := append([]model.Threat(nil), seedThreats...)
		threatIDs := make(map[string]string, len(threats))
		for i := range threats {
			threats[i].ID = id.NewULID()
			threatIDs[threats[i].Name] = threats[i].ID
		}
		if err := tx.Create(&threats).Error; err != nil {
			return fmt.Errorf("seed threats: %w", err)
		}

		mappings := make([]model.ControlMapping, 0, len(seedMappings))
		for _, m := range seedMappings {
			mappings = append(mappings, model.ControlMapping{
				ID:           id.NewULID(),
				ThreatID:     threatIDs[m.threat],
				ControlID:    controlIDs[m.control],
				EvidenceHint: m.hint,
			})
		}
		if err := tx.Create(&mappings).Error; err != nil {
			return fmt.Errorf("seed mappings: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Infow("seed data populated",
		"frameworks", len(seedFrameworks),
		"controls", len(seedControls),
		"prompts", len(seedPrompts),
		"threats", len(seedThreats),
		"mappings", len(seedMappings),
	)
	return true, nil
}

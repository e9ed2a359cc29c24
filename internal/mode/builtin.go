package mode

import (
	"time"

	"github.com/UJ2202/TOMAS/internal/engine"
)

// Builtin returns the builders for the modes shipped with the gateway,
// in catalog order.
func Builtin() []func() Mode {
	return []func() Mode{Research, RFPSOW, ITOps}
}

func Research() Mode {
	return Mode{
		ID:          "research",
		Name:        "Scientific Research",
		Description: "Generate research ideas, develop methodologies, execute experiments, and write scientific papers",
		Category:    "research",
		Engine:      engine.KindResearcher,
		Inputs: []InputField{
			{
				Name:     "data_description",
				Type:     FieldTextarea,
				Label:    "Data & Tools Description",
				Required: true,
				Help:     "Describe your research data, available tools, and computational environment",
			},
			{
				Name:    "backend",
				Type:    FieldSelect,
				Label:   "Execution Backend",
				Options: []string{"fast", "thorough"},
				Default: "fast",
				Help:    "fast: quicker runs; thorough: detailed planning and control",
			},
			{
				Name:    "journal",
				Type:    FieldSelect,
				Label:   "Journal Format",
				Options: []string{"NONE", "AAS", "APS", "ICML", "NeurIPS", "JHEP", "PASJ"},
				Default: "NONE",
				Help:    "Target journal for paper formatting",
			},
		},
		Outputs: []OutputField{
			{Name: "idea", Type: "document", Format: "md", Description: "Generated research idea and hypothesis"},
			{Name: "methodology", Type: "document", Format: "md", Description: "Research methodology and experimental design"},
			{Name: "results", Type: "document", Format: "md", Description: "Experimental results and analysis"},
			{Name: "paper", Type: "document", Format: "pdf", Description: "Complete research paper"},
			{Name: "plots", Type: "visualization", Format: "png", Description: "Generated plots and figures"},
		},
		EngineConfig: map[string]any{
			"backend": "fast",
		},
		InterventionPoints: []string{"after_idea", "after_methodology"},
		Timeout:            120 * time.Minute,
		Tags:               []string{"science", "research", "automation", "paper"},
		EstimatedTime:      "30-60 minutes",
		CostEstimate:       "$2-6 (depending on backend)",
	}
}

func RFPSOW() Mode {
	return Mode{
		ID:          "rfp_sow",
		Name:        "RFP/SOW Intelligence",
		Description: "Analyze RFP/SOW documents and generate cloud architecture proposals with cost estimates",
		Category:    "analysis",
		Engine:      engine.KindPlanner,
		Inputs: []InputField{
			{
				Name:     "rfp_document",
				Type:     FieldFile,
				Label:    "RFP/SOW Document",
				Required: true,
				Help:     "The Request for Proposal or Statement of Work document to analyze",
			},
			{
				Name:  "additional_context",
				Type:  FieldTextarea,
				Label: "Additional Context",
				Help:  "Extra constraints or requirements to consider during analysis",
			},
			{
				Name:     "cloud_provider",
				Type:     FieldSelect,
				Label:    "Cloud Provider",
				Options:  []string{"AWS", "Azure", "GCP", "Multi-Cloud", "On-Premise"},
				Default:  "AWS",
				Required: true,
				Help:     "Primary cloud platform for architecture design",
			},
			{
				Name:  "budget_constraint",
				Type:  FieldText,
				Label: "Budget Constraint (USD/month)",
				Help:  "Maximum monthly budget in USD",
			},
			{
				Name:    "compliance_requirements",
				Type:    FieldMultiselect,
				Label:   "Compliance Requirements",
				Options: []string{"SOC2", "HIPAA", "PCI-DSS", "GDPR", "FedRAMP", "ISO27001", "None"},
				Help:    "Applicable compliance frameworks",
			},
			{
				Name:     "llm",
				Type:     FieldSelect,
				Label:    "LLM Model",
				Options:  []string{"gpt-4o", "gpt-4.1", "claude-sonnet-4", "gemini-2.0-flash", "gemini-2.5-pro"},
				Default:  "gpt-4o",
				Required: true,
			},
		},
		Outputs: []OutputField{
			{Name: "executive_summary", Type: "document", Format: "md", Description: "Executive summary of the analysis"},
			{Name: "architecture_design", Type: "document", Format: "md", Description: "Detailed cloud architecture proposal"},
			{Name: "architecture_diagram", Type: "visualization", Format: "png", Description: "Visual architecture diagram"},
			{Name: "cost_estimate", Type: "data", Format: "json", Description: "Cost breakdown and estimates"},
			{Name: "implementation_plan", Type: "document", Format: "md", Description: "Phased implementation roadmap"},
			{Name: "risk_assessment", Type: "document", Format: "md", Description: "Risk analysis and mitigation strategies"},
		},
		EngineConfig: map[string]any{
			"workflow_stages": []string{"analysis", "architecture", "costing", "planning"},
			"max_rounds":      8,
		},
		InterventionPoints: []string{"after_analysis", "after_architecture"},
		Timeout:            60 * time.Minute,
		Tags:               []string{"analysis", "cloud", "proposal"},
		EstimatedTime:      "10-25 minutes",
		CostEstimate:       "$2-4",
	}
}

func ITOps() Mode {
	return Mode{
		ID:          "itops",
		Name:        "ITOps Ticket Analysis",
		Description: "Analyze IT support tickets to identify patterns, root causes, and generate insights",
		Category:    "analysis",
		Engine:      engine.KindPlanner,
		Inputs: []InputField{
			{
				Name:     "ticket_data",
				Type:     FieldFile,
				Label:    "Ticket Data",
				Required: true,
				Help:     "CSV or JSON file containing ticket information",
			},
			{
				Name:     "analysis_focus",
				Type:     FieldSelect,
				Label:    "Analysis Focus",
				Options:  []string{"Pattern Detection", "Root Cause Analysis", "Trend Analysis", "Performance Metrics", "Team Analysis", "Comprehensive"},
				Default:  "Comprehensive",
				Required: true,
				Help:     "Primary focus area for the analysis",
			},
			{
				Name:    "time_period",
				Type:    FieldSelect,
				Label:   "Time Period",
				Options: []string{"Last 7 Days", "Last 30 Days", "Last 90 Days", "Last Year", "All Time"},
				Default: "Last 30 Days",
				Help:    "Time range to analyze",
			},
			{
				Name:    "priority_filter",
				Type:    FieldMultiselect,
				Label:   "Priority Filter",
				Options: []string{"Critical", "High", "Medium", "Low"},
				Default: []string{"Critical", "High", "Medium", "Low"},
				Help:    "Filter tickets by priority",
			},
			{
				Name:     "llm",
				Type:     FieldSelect,
				Label:    "LLM Model",
				Options:  []string{"gpt-4o", "gpt-4.1", "claude-sonnet-4", "gemini-2.0-flash", "gemini-2.5-pro"},
				Default:  "gpt-4o",
				Required: true,
			},
		},
		Outputs: []OutputField{
			{Name: "summary_report", Type: "document", Format: "md", Description: "Executive summary of ticket analysis"},
			{Name: "pattern_analysis", Type: "document", Format: "md", Description: "Identified patterns and trends"},
			{Name: "root_causes", Type: "document", Format: "md", Description: "Root cause analysis findings"},
			{Name: "visualizations", Type: "visualization", Format: "png", Description: "Charts showing ticket metrics"},
			{Name: "recommendations", Type: "document", Format: "md", Description: "Actionable recommendations"},
			{Name: "metrics_data", Type: "data", Format: "json", Description: "Structured metrics and KPIs"},
		},
		EngineConfig: map[string]any{
			"workflow_stages": []string{"data_analysis", "pattern_detection", "visualization", "recommendations"},
			"max_rounds":      6,
		},
		InterventionPoints: []string{"after_pattern_detection"},
		Timeout:            45 * time.Minute,
		Tags:               []string{"analysis", "itops", "tickets"},
		EstimatedTime:      "5-15 minutes",
		CostEstimate:       "$1-3",
	}
}

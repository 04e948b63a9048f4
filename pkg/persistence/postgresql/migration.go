package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- JSON, not JSONB: template bodies keep their key order
			CREATE TABLE templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				body JSON NOT NULL,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_templates_owner ON templates(owner);
			CREATE INDEX idx_templates_created_at ON templates(created_at);
			CREATE INDEX idx_templates_deleted_at ON templates(deleted_at);
		`,
	}
}

package pages

const stylesheet = `:root {
  --color-primary: #1d4ed8;
  --color-text: #111827;
  --color-text-secondary: #4b5563;
  --color-bg: #ffffff;
  --color-bg-accent: #f3f4f6;
  --color-border: #e5e7eb;
  --spacing-xs: 0.25rem;
  --spacing-sm: 0.5rem;
  --spacing-md: 1rem;
  --spacing-lg: 2rem;
  --radius-sm: 0.25rem;
  --font-sans: system-ui, -apple-system, "Segoe UI", Roboto, sans-serif;
}

* { box-sizing: border-box; }

body {
  margin: 0 auto;
  max-width: 60rem;
  padding: var(--spacing-md);
  font-family: var(--font-sans);
  color: var(--color-text);
  background: var(--color-bg);
  line-height: 1.5;
}

a { color: var(--color-primary); }

.skip-link {
  position: absolute;
  left: -999px;
}
.skip-link:focus {
  left: var(--spacing-md);
  top: var(--spacing-md);
}

.school-details-list {
  display: grid;
  grid-template-columns: repeat(auto-fit, minmax(16rem, 1fr));
  gap: var(--spacing-lg);
}
.school-details-list dt { font-weight: 600; }
.school-details-list dd { margin: 0 0 var(--spacing-sm); color: var(--color-text-secondary); }

.badge {
  display: inline-block;
  padding: 0 var(--spacing-sm);
  border-radius: var(--radius-sm);
  background: var(--color-bg-accent);
  border: 1px solid var(--color-border);
  font-size: 0.875rem;
}

.province-list {
  list-style: none;
  padding: 0;
  display: grid;
  grid-template-columns: repeat(auto-fill, minmax(14rem, 1fr));
  gap: var(--spacing-sm);
}
.province-link {
  display: flex;
  justify-content: space-between;
  padding: var(--spacing-sm) var(--spacing-md);
  border: 1px solid var(--color-border);
  border-radius: var(--radius-sm);
  text-decoration: none;
}
.province-count { color: var(--color-text-secondary); }

footer {
  margin-top: var(--spacing-lg);
  color: var(--color-text-secondary);
  font-size: 0.875rem;
}
`
